package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 2, 15, 10, 30, 0, 123456789, time.UTC)

	cur, err := Decode(Encode(at, "pe_abc123"))
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, at, cur.CreatedAt)
	assert.Equal(t, "pe_abc123", cur.ID)
}

func TestDecodeEmptyMeansFirstPage(t *testing.T) {
	cur, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, cur)
}

func TestDecodeRejectsForeignCursors(t *testing.T) {
	for _, s := range []string{
		"not-base64!!!",
		"bm9waXBl",     // base64("nopipe"): missing separator
		"eHxwZV9hYmM=", // base64("x|pe_abc"): non-numeric timestamp
	} {
		_, err := Decode(s)
		assert.ErrorIs(t, err, ErrInvalidCursor, "input %q", s)
	}
}

func TestComputePageTrimsAndMints(t *testing.T) {
	key := func(s string) (time.Time, string) {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), s
	}

	// limit+1 rows fetched: a cursor points at the last returned row.
	page, cursor, more := ComputePage([]string{"a", "b", "c", "d"}, 3, key)
	assert.Equal(t, []string{"a", "b", "c"}, page)
	assert.True(t, more)
	cur, err := Decode(cursor)
	require.NoError(t, err)
	assert.Equal(t, "c", cur.ID)

	// Exactly limit rows: last page, no cursor.
	page, cursor, more = ComputePage([]string{"a", "b", "c"}, 3, key)
	assert.Len(t, page, 3)
	assert.Empty(t, cursor)
	assert.False(t, more)
}
