// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // optional; enables the distributed rate-limit store

	// Tokens
	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	MaxSessionsPerUser int

	// Rate limiting
	RateLimitWindow      time.Duration
	RateLimitMaxRequests int
	AdminIPAllowlist     []string // CIDRs or plain IPs; loopback/private always pass

	// Reservations
	SlotGranularity time.Duration // rounding unit for requested datetimes
	ExpireAfter     time.Duration // requested -> expired after this
	NoShowGrace     time.Duration // confirmed -> no_show after start + grace

	// Payment gateway
	GatewayURL       string
	GatewaySecret    string // HMAC secret shared with the gateway
	GatewayTimeout   time.Duration
	WebhookClockSkew time.Duration

	// Points
	PointsExpiryDays int
	PurchaseEarnRate float64       // fraction of the cash amount earned back on settlement
	ReferralWindow   time.Duration // read-side fallback match around paidAt

	// Referral commission
	ReferralStandardRate      float64
	ReferralInfluencerRate    float64
	InfluencerThreshold       int   // successful referrals required
	InfluencerThresholdAmount int64 // lifetime commission (KRW) required

	// Identity broker
	BrokerURL     string
	BrokerAPIKey  string
	BrokerTimeout time.Duration

	// Notifications
	NotificationMaxRetries  int
	NotificationBackoffBase time.Duration
	PushGatewayURL          string // optional; fake push delivery when unset
	PushServerKey           string
	PushTimeout             time.Duration
	PushPerSecond           int

	// Observability
	OTLPEndpoint string
}

// Defaults chosen for a single-region deployment
const (
	DefaultPort                = "8080"
	DefaultEnv                 = "development"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultAccessTokenTTL      = 24 * time.Hour
	DefaultRefreshTokenTTL     = 7 * 24 * time.Hour
	DefaultMaxSessions         = 5
	DefaultRateLimitWindowSec  = 900
	DefaultRateLimitMax        = 100
	DefaultSlotGranularityMin  = 30
	DefaultExpireAfterMin      = 1440
	DefaultNoShowGraceMin      = 30
	DefaultGatewayTimeoutMs    = 10000
	DefaultWebhookClockSkewSec = 300
	DefaultPointsExpiryDays    = 365
	DefaultPurchaseEarnRate    = 0.01
	DefaultReferralWindowMin   = 10
	DefaultStandardRate        = 0.10
	DefaultInfluencerRate      = 0.20
	DefaultInfluencerCount     = 10
	DefaultInfluencerAmount    = 100000
	DefaultBrokerTimeoutMs     = 5000
	DefaultNotifMaxRetries     = 5
	DefaultNotifBackoffMs      = 500
	DefaultPushTimeoutMs       = 3000
	DefaultPushPerSecond       = 50
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", DefaultPort),
		Env:       getEnv("ENV", DefaultEnv),
		LogLevel:  getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat: getEnv("LOG_FORMAT", DefaultLogFormat),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenTTL:     getEnvDuration("ACCESS_TOKEN_TTL", DefaultAccessTokenTTL),
		RefreshTokenTTL:    getEnvDuration("REFRESH_TOKEN_TTL", DefaultRefreshTokenTTL),
		MaxSessionsPerUser: getEnvInt("MAX_SESSIONS_PER_USER", DefaultMaxSessions),

		RateLimitWindow:      secs("RATE_LIMIT_WINDOW_SEC", DefaultRateLimitWindowSec),
		RateLimitMaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", DefaultRateLimitMax),
		AdminIPAllowlist:     getEnvList("ADMIN_IP_ALLOWLIST"),

		SlotGranularity: mins("RESERVATION_SLOT_GRANULARITY_MIN", DefaultSlotGranularityMin),
		ExpireAfter:     mins("RESERVATION_EXPIRE_AFTER_MIN", DefaultExpireAfterMin),
		NoShowGrace:     mins("RESERVATION_NO_SHOW_GRACE_MIN", DefaultNoShowGraceMin),

		GatewayURL:       os.Getenv("PAYMENT_GATEWAY_URL"),
		GatewaySecret:    os.Getenv("PAYMENT_GATEWAY_SECRET"),
		GatewayTimeout:   millis("PAYMENT_GATEWAY_TIMEOUT_MS", DefaultGatewayTimeoutMs),
		WebhookClockSkew: secs("PAYMENT_WEBHOOK_CLOCK_SKEW_SEC", DefaultWebhookClockSkewSec),

		PointsExpiryDays: getEnvInt("POINTS_DEFAULT_EXPIRY_DAYS", DefaultPointsExpiryDays),
		PurchaseEarnRate: getEnvFloat("POINTS_PURCHASE_EARN_RATE", DefaultPurchaseEarnRate),
		ReferralWindow:   mins("POINTS_REFERRAL_WINDOW_MIN", DefaultReferralWindowMin),

		ReferralStandardRate:      getEnvFloat("REFERRAL_STANDARD_RATE", DefaultStandardRate),
		ReferralInfluencerRate:    getEnvFloat("REFERRAL_INFLUENCER_RATE", DefaultInfluencerRate),
		InfluencerThreshold:       getEnvInt("REFERRAL_INFLUENCER_THRESHOLD", DefaultInfluencerCount),
		InfluencerThresholdAmount: getEnvInt64("REFERRAL_INFLUENCER_THRESHOLD_AMOUNT", DefaultInfluencerAmount),

		BrokerURL:     os.Getenv("IDENTITY_BROKER_URL"),
		BrokerAPIKey:  os.Getenv("IDENTITY_BROKER_API_KEY"),
		BrokerTimeout: millis("IDENTITY_BROKER_TIMEOUT_MS", DefaultBrokerTimeoutMs),

		NotificationMaxRetries:  getEnvInt("NOTIFICATIONS_MAX_RETRIES", DefaultNotifMaxRetries),
		NotificationBackoffBase: millis("NOTIFICATIONS_BACKOFF_BASE_MS", DefaultNotifBackoffMs),
		PushGatewayURL:          os.Getenv("PUSH_GATEWAY_URL"),
		PushServerKey:           os.Getenv("PUSH_SERVER_KEY"),
		PushTimeout:             millis("PUSH_TIMEOUT_MS", DefaultPushTimeoutMs),
		PushPerSecond:           getEnvInt("PUSH_PER_SECOND", DefaultPushPerSecond),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and sane.
// Development gets permissive defaults; production does not.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.GatewaySecret == "" {
			return fmt.Errorf("PAYMENT_GATEWAY_SECRET is required in production")
		}
		if len(c.AdminIPAllowlist) == 0 {
			return fmt.Errorf("ADMIN_IP_ALLOWLIST is required in production")
		}
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if c.MaxSessionsPerUser < 1 {
		return fmt.Errorf("MAX_SESSIONS_PER_USER must be at least 1")
	}
	if c.ReferralStandardRate < 0 || c.ReferralStandardRate > 1 {
		return fmt.Errorf("REFERRAL_STANDARD_RATE must be within [0,1]")
	}
	if c.ReferralInfluencerRate < 0 || c.ReferralInfluencerRate > 1 {
		return fmt.Errorf("REFERRAL_INFLUENCER_RATE must be within [0,1]")
	}
	if c.PurchaseEarnRate < 0 || c.PurchaseEarnRate > 1 {
		return fmt.Errorf("POINTS_PURCHASE_EARN_RATE must be within [0,1]")
	}
	if c.RateLimitMaxRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration parses Go duration strings ("24h", "90m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mins(key string, def int) time.Duration {
	return time.Duration(getEnvInt(key, def)) * time.Minute
}

func secs(key string, def int) time.Duration {
	return time.Duration(getEnvInt(key, def)) * time.Second
}

func millis(key string, def int) time.Duration {
	return time.Duration(getEnvInt(key, def)) * time.Millisecond
}
