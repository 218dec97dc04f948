package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultAccessTokenTTL, cfg.AccessTokenTTL)
	assert.Equal(t, DefaultRefreshTokenTTL, cfg.RefreshTokenTTL)
	assert.Equal(t, DefaultMaxSessions, cfg.MaxSessionsPerUser)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 100, cfg.RateLimitMaxRequests)
	assert.Equal(t, 24*time.Hour, cfg.ExpireAfter)
	assert.Equal(t, 30*time.Minute, cfg.NoShowGrace)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 5*time.Minute, cfg.WebhookClockSkew)
	assert.Equal(t, 10*time.Minute, cfg.ReferralWindow)
	assert.Equal(t, 0.10, cfg.ReferralStandardRate)
	assert.Equal(t, 0.20, cfg.ReferralInfluencerRate)
	assert.Equal(t, 5*time.Second, cfg.BrokerTimeout)
	assert.Equal(t, 3*time.Second, cfg.PushTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "ENV", "development")
	setEnv(t, "PORT", "9090")
	setEnv(t, "ACCESS_TOKEN_TTL", "12h")
	setEnv(t, "MAX_SESSIONS_PER_USER", "3")
	setEnv(t, "RATE_LIMIT_WINDOW_SEC", "60")
	setEnv(t, "RESERVATION_NO_SHOW_GRACE_MIN", "45")
	setEnv(t, "REFERRAL_STANDARD_RATE", "0.05")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 12*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 3, cfg.MaxSessionsPerUser)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 45*time.Minute, cfg.NoShowGrace)
	assert.Equal(t, 0.05, cfg.ReferralStandardRate)
}

func TestLoad_AdminAllowlist(t *testing.T) {
	setEnv(t, "ENV", "development")
	setEnv(t, "ADMIN_IP_ALLOWLIST", "10.1.2.3, 203.0.113.0/24 ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.2.3", "203.0.113.0/24"}, cfg.AdminIPAllowlist)
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{
		Env:                  "production",
		MaxSessionsPerUser:   5,
		RateLimitMaxRequests: 100,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENT_GATEWAY_SECRET")

	cfg.GatewaySecret = "whsec-test"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_IP_ALLOWLIST")

	cfg.AdminIPAllowlist = []string{"203.0.113.7"}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	cfg := &Config{
		Env:                  "development",
		JWTSecret:            "short",
		MaxSessionsPerUser:   5,
		RateLimitMaxRequests: 100,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")
}

func TestValidate_RateBounds(t *testing.T) {
	cfg := &Config{
		Env:                  "development",
		MaxSessionsPerUser:   5,
		RateLimitMaxRequests: 100,
		ReferralStandardRate: 1.5,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REFERRAL_STANDARD_RATE")
}

func TestIsProduction(t *testing.T) {
	assert.True(t, (&Config{Env: "production"}).IsProduction())
	assert.False(t, (&Config{Env: "development"}).IsProduction())
	assert.True(t, (&Config{Env: "development"}).IsDevelopment())
}
