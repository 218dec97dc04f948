// Package server wires the HTTP API: stores, services, middleware, routes,
// background timers, and graceful shutdown.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/modubeauty/modu/internal/admin"
	"github.com/modubeauty/modu/internal/audit"
	"github.com/modubeauty/modu/internal/auth"
	"github.com/modubeauty/modu/internal/circuitbreaker"
	"github.com/modubeauty/modu/internal/config"
	"github.com/modubeauty/modu/internal/dbsession"
	"github.com/modubeauty/modu/internal/health"
	"github.com/modubeauty/modu/internal/identity"
	"github.com/modubeauty/modu/internal/logging"
	"github.com/modubeauty/modu/internal/metrics"
	"github.com/modubeauty/modu/internal/notification"
	"github.com/modubeauty/modu/internal/payment"
	"github.com/modubeauty/modu/internal/points"
	"github.com/modubeauty/modu/internal/ratelimit"
	"github.com/modubeauty/modu/internal/realtime"
	"github.com/modubeauty/modu/internal/referral"
	"github.com/modubeauty/modu/internal/reservation"
	"github.com/modubeauty/modu/internal/security"
	"github.com/modubeauty/modu/internal/settlement"
	"github.com/modubeauty/modu/internal/shop"
	"github.com/modubeauty/modu/internal/traces"
	"github.com/modubeauty/modu/internal/user"
	"github.com/modubeauty/modu/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	users       *user.Service
	authMgr     *auth.Manager
	shops       *shop.Manager
	ledger      *points.Ledger
	reservation *reservation.Service
	payments    *payment.Orchestrator
	referrals   *referral.Service
	identity    *identity.Service
	settlement  *settlement.Service
	adminSvc    *admin.Service
	outbox      *notification.Outbox
	pushReg     *notification.Registry
	recorder    *audit.Recorder
	auditWriter *audit.Writer
	hub         *realtime.Hub
	healthReg   *health.Registry

	// injectable outbound dependencies
	gateway payment.Gateway
	broker  identity.Broker
	push    notification.Push

	reservationTimer  *reservation.Timer
	paymentTimer      *payment.Timer
	pointsTimer       *points.Timer
	notificationTimer *notification.Timer

	limiter      *ratelimit.Limiter
	rlMemory     *ratelimit.MemoryStore // nil when Redis backs the limiter
	redis        *redis.Client
	db           *sql.DB // nil when running on in-memory stores
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	stopTraces   func(context.Context) error
	cancelRunCtx context.CancelFunc

	authHandler         *auth.Handler
	userHandler         *user.Handler
	shopHandler         *shop.Handler
	reservationHandler  *reservation.Handler
	paymentHandler      *payment.Handler
	pointsHandler       *points.Handler
	identityHandler     *identity.Handler
	notificationHandler *notification.Handler
	settlementHandler   *settlement.Handler
	adminHandler        *admin.Handler
	auditHandler        *audit.Handler

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGateway injects a payment gateway client (for testing)
func WithGateway(g payment.Gateway) Option {
	return func(s *Server) {
		s.gateway = g
	}
}

// WithBroker injects an identity broker client (for testing)
func WithBroker(b identity.Broker) Option {
	return func(s *Server) {
		s.broker = b
	}
}

// WithPush injects a push delivery client (for testing)
func WithPush(p notification.Push) Option {
	return func(s *Server) {
		s.push = p
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may inject logger or outbound clients)
	for _, opt := range opts {
		opt(s)
	}

	// Shared breaker for outbound HTTP dependencies, keyed per dependency.
	breaker := circuitbreaker.New(5, 30*time.Second)
	breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		metrics.BreakerTransitionsTotal.WithLabelValues(key, to.String()).Inc()
	})

	// Outbound clients unless injected: real HTTP when configured, fakes
	// otherwise so development needs no external services.
	if s.gateway == nil {
		if cfg.GatewayURL != "" {
			s.gateway = payment.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayTimeout, breaker)
			s.logger.Info("payment gateway client enabled", "url", cfg.GatewayURL)
		} else {
			s.gateway = payment.NewFakeGateway()
			s.logger.Info("payment gateway client enabled (fake)")
		}
	}
	if s.broker == nil {
		if cfg.BrokerURL != "" {
			s.broker = identity.NewHTTPBroker(cfg.BrokerURL, cfg.BrokerAPIKey, breaker)
			s.logger.Info("identity broker client enabled", "url", cfg.BrokerURL)
		} else {
			s.broker = identity.NewFakeBroker()
			s.logger.Info("identity broker client enabled (fake)")
		}
	}
	if s.push == nil {
		if cfg.PushGatewayURL != "" {
			s.push = notification.NewHTTPPush(cfg.PushGatewayURL, cfg.PushServerKey, cfg.PushTimeout, cfg.PushPerSecond)
			s.logger.Info("push delivery enabled", "url", cfg.PushGatewayURL)
		} else {
			s.push = notification.NewFakePush()
			s.logger.Info("push delivery enabled (fake)")
		}
	}

	// Storage (Postgres when DATABASE_URL is set, in-memory otherwise)
	var (
		userStore   user.Store
		authStore   auth.Store
		shopStore   shop.Store
		resStore    reservation.Store
		payStore    payment.Store
		refStore    referral.Store
		idStore     identity.Store
		notifStore  notification.Store
		tokenStore  notification.TokenStore
		auditStore     audit.Store
		txLedger       func(tx *sql.Tx) *points.Ledger
		txReferrals    func(tx *sql.Tx) *referral.Service
		txReservations func(tx *sql.Tx) *reservation.Service
		txAppender     audit.TxAppender
		pointsStore    points.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		userStore = user.NewPostgresStore(db)
		authStore = auth.NewPostgresStore(db)
		shopStore = shop.NewPostgresStore(db)
		pgRes := reservation.NewPostgresStore(db)
		resStore = pgRes
		payStore = payment.NewPostgresStore(db)
		pgRef := referral.NewPostgresStore(db)
		refStore = pgRef
		idStore = identity.NewPostgresStore(db)
		notifStore = notification.NewPostgresStore(db)
		tokenStore = notification.NewPostgresTokenStore(db)

		pgAudit := audit.NewPostgresStore(db)
		auditStore = pgAudit
		txAppender = pgAudit

		pgPoints := points.NewPostgresStore(db)
		pointsStore = pgPoints
		// Ledger writes join caller-owned transactions through a tx-bound
		// store copy; settlements and point debits commit atomically.
		txLedger = func(tx *sql.Tx) *points.Ledger {
			return s.ledger.WithStore(pgPoints.WithTx(tx))
		}
		// Same pattern for the services the webhook settlement touches:
		// referral attribution and reservation moves run on tx-bound copies
		// so they commit or roll back with the payment.
		txReferrals = func(tx *sql.Tx) *referral.Service {
			return s.referrals.WithStore(pgRef.WithTx(tx), txLedger(tx))
		}
		txReservations = func(tx *sql.Tx) *reservation.Service {
			return s.reservation.WithStore(pgRes.WithTx(tx))
		}
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		userStore = user.NewMemoryStore()
		authStore = auth.NewMemoryStore()
		shopStore = shop.NewMemoryStore()
		resStore = reservation.NewMemoryStore()
		payStore = payment.NewMemoryStore()
		refStore = referral.NewMemoryStore()
		idStore = identity.NewMemoryStore()
		notifStore = notification.NewMemoryStore()
		tokenStore = notification.NewMemoryTokenStore()
		auditStore = audit.NewMemoryStore()
		pointsStore = points.NewMemoryStore()
	}

	// Redis backs the rate limiter when configured; single-instance
	// deployments fall back to the in-process store.
	var counterStore ratelimit.CounterStore
	if cfg.RedisURL != "" {
		ropts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		s.redis = redis.NewClient(ropts)
		counterStore = ratelimit.NewRedisStore(s.redis)
		s.logger.Info("rate limiting backed by Redis")
	} else {
		s.rlMemory = ratelimit.NewMemoryStore()
		counterStore = s.rlMemory
	}
	s.limiter = ratelimit.NewLimiter(counterStore, cfg.RateLimitWindow, cfg.RateLimitMaxRequests)

	// Audit pipeline: async writer for request-path events, direct tx
	// appends for events that must commit with their business transaction.
	s.auditWriter = audit.NewWriter(auditStore)
	s.recorder = audit.NewRecorder(s.auditWriter)
	if txAppender != nil {
		s.recorder = s.recorder.WithTxAppender(txAppender)
	}

	// Notifications
	s.outbox = notification.NewOutbox(notifStore)
	s.pushReg = notification.NewRegistry(tokenStore)
	worker := notification.NewWorker(notifStore, tokenStore, s.push).
		WithMaxAttempts(cfg.NotificationMaxRetries).
		WithBackoffBase(cfg.NotificationBackoffBase)
	s.notificationTimer = notification.NewTimer(worker, 5*time.Second)

	// Core services
	s.users = user.NewService(userStore).WithAuditor(s.recorder)
	s.authMgr = auth.NewManager(authStore, userStore, auth.Config{
		Secret:      []byte(cfg.JWTSecret),
		AccessTTL:   cfg.AccessTokenTTL,
		RefreshTTL:  cfg.RefreshTokenTTL,
		MaxSessions: cfg.MaxSessionsPerUser,
	}).WithSecurityRecorder(s.recorder)
	s.users = s.users.WithRevoker(s.authMgr)

	s.shops = shop.NewManager(shopStore).WithAuditor(s.recorder)

	s.ledger = points.NewLedger(pointsStore).
		WithDefaultExpiry(time.Duration(cfg.PointsExpiryDays) * 24 * time.Hour).
		WithReferralWindow(cfg.ReferralWindow)
	s.pointsTimer = points.NewTimer(s.ledger, time.Minute)

	s.referrals = referral.NewService(refStore, s.users, s.ledger, referral.Rates{
		Standard:      cfg.ReferralStandardRate,
		Influencer:    cfg.ReferralInfluencerRate,
		PromoteCount:  cfg.InfluencerThreshold,
		PromoteAmount: cfg.InfluencerThresholdAmount,
	}).WithNotifier(s.outbox)

	s.hub = realtime.NewHub(s.logger)

	s.reservation = reservation.NewService(resStore, s.shops, s.ledger, reservation.Config{
		SlotGranularity: cfg.SlotGranularity,
		ExpireAfter:     cfg.ExpireAfter,
		NoShowGrace:     cfg.NoShowGrace,
	}).WithAuditor(s.recorder).WithPublisher(s.hub).WithNotifier(s.outbox)
	if txLedger != nil {
		s.reservation = s.reservation.WithTxLedger(txLedger)
	}
	s.reservationTimer = reservation.NewTimer(s.reservation, 30*time.Second)

	s.payments = payment.NewOrchestrator(payStore, s.reservation, s.ledger, s.gateway).
		WithReferrals(s.referrals).
		WithNotifier(s.outbox).
		WithEarnRate(cfg.PurchaseEarnRate)
	if txLedger != nil {
		s.payments = s.payments.
			WithTxLedger(txLedger).
			WithTxReferrals(txReferrals).
			WithTxReservations(txReservations)
	}
	s.paymentTimer = payment.NewTimer(s.payments, 30*time.Second)

	s.identity = identity.NewService(idStore, s.users, s.broker)
	s.settlement = settlement.NewService(payStore, s.shops)
	s.adminSvc = admin.NewService(s.users, s.ledger, s.reservation).
		WithReconciler(s.payments).
		WithAuditor(s.recorder)

	// Handlers
	s.authHandler = auth.NewHandler(s.authMgr, s.users).WithPushRegistrar(s.pushReg)
	s.userHandler = user.NewHandler(s.users)
	s.shopHandler = shop.NewHandler(s.shops)
	s.reservationHandler = reservation.NewHandler(s.reservation)
	s.paymentHandler = payment.NewHandler(s.payments, []byte(cfg.GatewaySecret), cfg.WebhookClockSkew)
	s.pointsHandler = points.NewHandler(s.ledger)
	s.identityHandler = identity.NewHandler(s.identity)
	s.notificationHandler = notification.NewHandler(s.pushReg)
	s.settlementHandler = settlement.NewHandler(s.settlement)
	s.adminHandler = admin.NewHandler(s.adminSvc, s.shops)
	s.auditHandler = audit.NewHandler(auditStore)

	// Health checks
	s.healthReg = health.NewRegistry()
	if s.db != nil {
		s.healthReg.Register("postgres", health.DBChecker("postgres", s.db))
	}
	if s.redis != nil {
		s.healthReg.Register("redis", health.RedisChecker("redis", s.redis))
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":      "internal",
				"message":   "An unexpected error occurred",
				"timestamp": time.Now().UTC(),
			},
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins in development - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Keep the request ID a load balancer already assigned
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// identityMiddleware projects the authenticated principal into the request
// context so Postgres stores bind it to their transactions. Row-level
// security policies read the resulting session variables.
func (s *Server) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, ok := auth.GetPrincipal(c); ok {
			ctx := dbsession.WithIdentity(c.Request.Context(), dbsession.Identity{
				UserID: p.ID,
				Role:   string(p.Role),
				ShopID: p.ShopID,
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Ops endpoints outside /api
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	api := s.router.Group("/api")

	// Public: signup/login/refresh, shop browse, gateway webhook (the HMAC
	// signature is the webhook's authentication). Anonymous traffic rate-
	// limits per client IP.
	public := api.Group("", ratelimit.Middleware(s.limiter, s.recorder))
	s.authHandler.RegisterRoutes(public)
	s.shopHandler.RegisterRoutes(public)
	s.paymentHandler.RegisterRoutes(public)

	// Authenticated. The limiter sits after auth so budgets key on the
	// principal: many users behind one NAT do not share a bucket, and one
	// abusive token cannot spend the office's allowance.
	protected := api.Group("",
		auth.Middleware(s.authMgr),
		s.identityMiddleware(),
		ratelimit.Middleware(s.limiter, s.recorder),
	)
	s.authHandler.RegisterProtectedRoutes(protected)
	s.userHandler.RegisterRoutes(protected)
	s.notificationHandler.RegisterProtectedRoutes(protected)
	s.pointsHandler.RegisterProtectedRoutes(protected)
	s.paymentHandler.RegisterProtectedRoutes(protected)
	s.identityHandler.RegisterProtectedRoutes(protected)
	s.shopHandler.RegisterProtectedRoutes(protected)

	// Tenancy-gated shop scope: every route under /shops/:shopId checks the
	// principal against the path tenant before any handler runs.
	shopScope := protected.Group("/shops/:shopId", shop.Gate(s.shops, s.recorder))
	s.reservationHandler.RegisterShopRoutes(shopScope)
	s.shopHandler.RegisterShopRoutes(shopScope)
	s.settlementHandler.RegisterShopRoutes(shopScope)
	s.hub.RegisterShopRoutes(shopScope)

	// Admin scope: role check plus source IP allowlist
	adminScope := protected.Group("/admin",
		auth.RequireAdmin(),
		ratelimit.AdminIPGate(s.cfg.AdminIPAllowlist, s.recorder),
	)
	s.adminHandler.RegisterAdminRoutes(adminScope)
	s.auditHandler.RegisterAdminRoutes(adminScope)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.healthReg.CheckAll(c.Request.Context())
	status := "healthy"
	code := http.StatusOK
	if !healthy || !s.healthy.Load() {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().UTC(),
		"checks": checks,
	})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	if s.cfg.OTLPEndpoint != "" {
		stop, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
		if err != nil {
			s.logger.Warn("tracing disabled", "error", err)
		} else {
			s.stopTraces = stop
		}
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Background workers
	s.auditWriter.Start(runCtx)
	go s.hub.Run(runCtx)
	go s.reservationTimer.Start(runCtx)
	go s.paymentTimer.Start(runCtx)
	go s.pointsTimer.Start(runCtx)
	go s.notificationTimer.Start(runCtx)

	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Stop background goroutines (hub, timers, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.reservationTimer.Stop()
	s.paymentTimer.Stop()
	s.pointsTimer.Stop()
	s.notificationTimer.Stop()
	s.logger.Info("background timers stopped")

	// Flush buffered audit events before the store goes away
	s.auditWriter.Stop()
	s.logger.Info("audit writer stopped")

	if s.rlMemory != nil {
		s.rlMemory.Stop()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	if s.stopTraces != nil {
		if err := s.stopTraces(ctx); err != nil {
			s.logger.Error("trace exporter close error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
