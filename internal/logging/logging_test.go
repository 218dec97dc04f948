package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevelGates(t *testing.T) {
	cases := []struct {
		level   string
		debugOn bool
		infoOn  bool
	}{
		{"", false, true},
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"error", false, false},
	}
	for _, tc := range cases {
		logger := New(tc.level, "text")
		require.NotNil(t, logger, "level %q", tc.level)
		assert.Equal(t, tc.debugOn, logger.Enabled(context.Background(), slog.LevelDebug), "debug at %q", tc.level)
		assert.Equal(t, tc.infoOn, logger.Enabled(context.Background(), slog.LevelInfo), "info at %q", tc.level)
	}
}

func TestNewJSONFormat(t *testing.T) {
	assert.NotNil(t, New("info", "json"))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "req_abc")
	assert.Equal(t, "req_abc", RequestID(ctx))

	ctx = WithRequestID(ctx, "req_def")
	assert.Equal(t, "req_def", RequestID(ctx), "later value wins")
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	custom := New("debug", "json")
	ctx := WithLogger(context.Background(), custom)
	assert.Same(t, custom, FromContext(ctx))
}

func TestLStampsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req_789")

	L(ctx).Info("reservation created", "reservationId", "rsv_1")
	assert.Contains(t, buf.String(), `"request_id":"req_789"`)
	assert.Contains(t, buf.String(), `"reservationId":"rsv_1"`)
}

func TestLWithoutRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	L(ctx).Info("sweep done")
	assert.NotContains(t, buf.String(), "request_id")
}
