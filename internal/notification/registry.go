package notification

import (
	"context"
	"time"

	"github.com/modubeauty/modu/internal/errs"
)

// Registry manages device push token registrations. It implements the
// auth package's PushRegistrar so login flows can register tokens and
// logout can detach the device.
type Registry struct {
	tokens TokenStore
	now    func() time.Time
}

// NewRegistry creates a token registry.
func NewRegistry(tokens TokenStore) *Registry {
	return &Registry{tokens: tokens, now: time.Now}
}

var validPlatforms = map[string]bool{"ios": true, "android": true, "web": true}

// Register stores a device token. A new token for a device the user
// already registered supersedes the old one.
func (r *Registry) Register(ctx context.Context, userID, token, platform, deviceID string) error {
	if token == "" || deviceID == "" {
		return errs.E(errs.KindValidation, "token and deviceId are required")
	}
	if !validPlatforms[platform] {
		return errs.Ef(errs.KindValidation, "platform must be one of ios, android, web")
	}
	now := r.now().UTC()
	return r.tokens.Upsert(ctx, &PushToken{
		UserID:    userID,
		Token:     token,
		Platform:  platform,
		DeviceID:  deviceID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// DeactivateDevice stops deliveries to one of the user's devices.
// Unknown devices are a no-op so logout never fails on a stale client.
func (r *Registry) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	if deviceID == "" {
		return errs.E(errs.KindValidation, "deviceId is required")
	}
	return r.tokens.DeactivateDevice(ctx, userID, deviceID)
}

// Devices lists the user's active registrations.
func (r *Registry) Devices(ctx context.Context, userID string) ([]*PushToken, error) {
	return r.tokens.ListActive(ctx, userID)
}
