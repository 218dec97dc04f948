package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestLimiter(t *testing.T, window time.Duration, max int) (*Limiter, *MemoryStore, *time.Time) {
	t.Helper()
	store := NewMemoryStore()
	t.Cleanup(store.Stop)
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	l := NewLimiter(store, window, max)
	l.now = func() time.Time { return current }
	return l, store, &current
}

func TestAllowWithinLimit(t *testing.T) {
	l, _, _ := newTestLimiter(t, time.Minute, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "ip:1.2.3.4", "shops")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestOverLimitBlocks(t *testing.T) {
	l, _, _ := newTestLimiter(t, time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Allow(ctx, "ip:1.2.3.4", "auth")
		require.NoError(t, err)
	}
	d, err := l.Allow(ctx, "ip:1.2.3.4", "auth")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, baseBlock, d.RetryAfter)
	assert.Equal(t, int64(1), d.Violations)

	// Subsequent requests during the block are denied without counting
	// as fresh violations.
	d, err = l.Allow(ctx, "ip:1.2.3.4", "auth")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Violations)
}

func TestRepeatedViolationsExtendBlock(t *testing.T) {
	l, _, current := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()

	trip := func() Decision {
		t.Helper()
		_, err := l.Allow(ctx, "ip:9.9.9.9", "auth")
		require.NoError(t, err)
		d, err := l.Allow(ctx, "ip:9.9.9.9", "auth")
		require.NoError(t, err)
		require.False(t, d.Allowed)
		return d
	}

	d := trip()
	assert.Equal(t, baseBlock, d.RetryAfter)

	// Wait out block and window, violate again: block doubles.
	*current = current.Add(2 * time.Minute)
	d = trip()
	assert.Equal(t, 2*baseBlock, d.RetryAfter)

	*current = current.Add(5 * time.Minute)
	d = trip()
	assert.Equal(t, 4*baseBlock, d.RetryAfter)
}

func TestBlockIsCappedAtOneHour(t *testing.T) {
	l, store, current := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()

	// Pre-load a long violation streak.
	for i := 0; i < 12; i++ {
		_, err := store.Incr(ctx, "rl:vio:ip:6.6.6.6", violationTTL)
		require.NoError(t, err)
	}
	_ = current

	_, err := l.Allow(ctx, "ip:6.6.6.6", "auth")
	require.NoError(t, err)
	d, err := l.Allow(ctx, "ip:6.6.6.6", "auth")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, maxBlock, d.RetryAfter)
}

func TestWindowResets(t *testing.T) {
	l, _, current := newTestLimiter(t, time.Minute, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := l.Allow(ctx, "ip:1.1.1.1", "points")
		require.NoError(t, err)
	}
	*current = current.Add(2 * time.Minute)

	d, err := l.Allow(ctx, "ip:1.1.1.1", "points")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestFamiliesAreIndependent(t *testing.T) {
	l, _, _ := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()

	_, err := l.Allow(ctx, "ip:1.2.3.4", "auth")
	require.NoError(t, err)
	d, err := l.Allow(ctx, "ip:1.2.3.4", "shops")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRouteFamily(t *testing.T) {
	assert.Equal(t, "auth", routeFamily("/api/auth/login"))
	assert.Equal(t, "shops", routeFamily("/api/shops/shp_1/reservations"))
	assert.Equal(t, "points", routeFamily("/api/points"))
	assert.Equal(t, "other", routeFamily("/metrics"))
}

type nopSecurity struct{ events int }

func (n *nopSecurity) Security(context.Context, string, string, map[string]any) { n.events++ }

func TestMiddlewareDeniesWith429(t *testing.T) {
	l, _, _ := newTestLimiter(t, time.Minute, 1)
	sec := &nopSecurity{}

	r := gin.New()
	r.Use(Middleware(l, sec))
	r.GET("/api/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 1, sec.events)
}

func TestAdminIPGate(t *testing.T) {
	sec := &nopSecurity{}
	r := gin.New()
	r.Use(AdminIPGate([]string{"203.0.113.0/24", "198.51.100.7"}, sec))
	r.GET("/api/admin/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		remote string
		want   int
	}{
		{"loopback always passes", "127.0.0.1:1000", http.StatusOK},
		{"private always passes", "10.1.2.3:1000", http.StatusOK},
		{"allowlisted cidr", "203.0.113.50:1000", http.StatusOK},
		{"allowlisted ip", "198.51.100.7:1000", http.StatusOK},
		{"public unlisted", "198.51.100.8:1000", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
			req.RemoteAddr = tc.remote
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
	assert.Equal(t, 1, sec.events)
}
