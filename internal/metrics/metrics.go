// Package metrics provides Prometheus instrumentation for the Modu platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modu",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modu",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// --- Reservation metrics ---

	ReservationsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modu",
		Name:      "reservations_created_total",
		Help:      "Total reservations created.",
	})

	ReservationTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modu",
			Name:      "reservation_transitions_total",
			Help:      "Total reservation status transitions by target status.",
		},
		[]string{"to"},
	)

	SlotConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modu",
		Name:      "slot_conflicts_total",
		Help:      "Total reservation attempts rejected because the slot was taken.",
	})

	// --- Payment metrics ---

	PaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modu",
			Name:      "payments_total",
			Help:      "Total payment records by final status.",
		},
		[]string{"status"},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modu",
			Name:      "webhook_events_total",
			Help:      "Gateway webhook deliveries by processing result.",
		},
		[]string{"result"},
	)

	// --- Point ledger metrics ---

	PointEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modu",
			Name:      "point_entries_total",
			Help:      "Total point ledger entries written by type.",
		},
		[]string{"type"},
	)

	ReferralCommissionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modu",
		Name:      "referral_commissions_total",
		Help:      "Total referral commissions credited.",
	})

	// --- Notification metrics ---

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modu",
			Name:      "notifications_total",
			Help:      "Push notification deliveries by result.",
		},
		[]string{"result"},
	)

	// --- Security metrics ---

	RateLimitDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modu",
			Name:      "rate_limit_denied_total",
			Help:      "Requests denied by the rate limiter, by key scope.",
		},
		[]string{"scope"},
	)

	SecurityEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modu",
			Name:      "security_events_total",
			Help:      "Security events recorded by kind.",
		},
		[]string{"kind"},
	)

	AuditDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modu",
		Name:      "audit_dropped_total",
		Help:      "Audit events dropped because the writer buffer was full.",
	})

	// --- Outbound dependency metrics ---

	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modu",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by dependency and new state.",
		},
		[]string{"dependency", "state"},
	)

	// ActiveWebSocketClients tracks connected shop stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "modu",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// --- Database pool gauges ---

	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "modu", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "modu", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "modu", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "modu", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "modu", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "modu", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ReservationsCreatedTotal,
		ReservationTransitionsTotal,
		SlotConflictsTotal,
		PaymentsTotal,
		WebhookEventsTotal,
		PointEntriesTotal,
		ReferralCommissionsTotal,
		NotificationsTotal,
		RateLimitDeniedTotal,
		SecurityEventsTotal,
		AuditDroppedTotal,
		BreakerTransitionsTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
