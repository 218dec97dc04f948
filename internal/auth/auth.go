// Package auth implements the token service and principal resolution.
//
// Two artifacts per authenticated session:
//   - Access token: HS256 JWT, short-lived, carrying {sub, role, shop_id, sid}.
//   - Refresh token: opaque random string, stored hashed, rotating. Each
//     refresh mints a new pair and revokes its predecessor; reuse of a
//     rotated token revokes the whole chain.
//
// Verification always re-hydrates the live principal so role and status
// changes take effect before the access token expires.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/idgen"
	"github.com/modubeauty/modu/internal/user"
)

var (
	ErrSessionNotFound = errors.New("auth: session not found")
	ErrSessionRevoked  = errors.New("auth: session revoked")
	ErrSessionExpired  = errors.New("auth: session expired")
	ErrRoleChanged     = errors.New("auth: role changed since token was issued")
)

// Session is a persisted refresh-token record. The raw refresh token is
// returned to the client once; only its SHA-256 hash is stored.
type Session struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	RefreshHash       string     `json:"-"`
	DeviceFingerprint string     `json:"deviceFingerprint,omitempty"`
	UserAgent         string     `json:"userAgent,omitempty"`
	IP                string     `json:"ip,omitempty"`
	IssuedAt          time.Time  `json:"issuedAt"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	RotatedFrom       string     `json:"-"`
	RevokedAt         *time.Time `json:"revokedAt,omitempty"`
	RevokeReason      string     `json:"revokeReason,omitempty"`
}

// Active reports whether the session can still be refreshed at t.
func (s *Session) Active(t time.Time) bool {
	return s.RevokedAt == nil && t.Before(s.ExpiresAt)
}

// Store persists auth sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	GetByRefreshHash(ctx context.Context, hash string) (*Session, error)
	// GetSuccessor returns the session rotated from the given one, if any.
	GetSuccessor(ctx context.Context, id string) (*Session, error)
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	Update(ctx context.Context, s *Session) error
	RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int, error)
}

// SecurityRecorder records auth security events (refresh-token reuse).
type SecurityRecorder interface {
	Security(ctx context.Context, actorID, kind string, details map[string]any)
}

// Principal is the resolved actor attached to every authenticated request.
type Principal struct {
	ID        string      `json:"id"`
	Role      user.Role   `json:"role"`
	ShopID    string      `json:"shopId,omitempty"`
	Status    user.Status `json:"status"`
	Name      string      `json:"name,omitempty"`
	SessionID string      `json:"-"`
}

// IsAdmin reports whether the principal has platform-wide scope.
func (p *Principal) IsAdmin() bool { return p.Role.IsAdmin() }

// Claims is the access-token payload.
type Claims struct {
	Role   string `json:"role"`
	ShopID string `json:"shop_id,omitempty"`
	SID    string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenPair is the response of Issue and Refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // access token lifetime in seconds
	SessionID    string `json:"-"`
}

// DeviceInfo identifies the client device a session is bound to.
type DeviceInfo struct {
	Fingerprint string `json:"deviceFingerprint"`
	UserAgent   string `json:"userAgent,omitempty"`
	IP          string `json:"-"`
}

// Config holds token parameters.
type Config struct {
	Secret      []byte
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	MaxSessions int
}

// Manager issues, refreshes, verifies, and revokes token pairs.
type Manager struct {
	store    Store
	users    user.Store
	cfg      Config
	security SecurityRecorder
	now      func() time.Time
}

// NewManager creates a token manager. users is consulted on every Verify
// so stale role claims are rejected.
func NewManager(store Store, users user.Store, cfg Config) *Manager {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 5
	}
	return &Manager{store: store, users: users, cfg: cfg, now: time.Now}
}

// WithSecurityRecorder attaches the security event sink.
func (m *Manager) WithSecurityRecorder(r SecurityRecorder) *Manager {
	m.security = r
	return m
}

// Issue creates a session and returns a token pair. When the principal
// already has MaxSessions active sessions, the oldest are revoked.
func (m *Manager) Issue(ctx context.Context, u *user.User, device DeviceInfo) (*TokenPair, error) {
	now := m.now().UTC()

	if err := m.enforceSessionLimit(ctx, u.ID, now); err != nil {
		return nil, err
	}

	rawRefresh := idgen.Token(32)
	sess := &Session{
		ID:                idgen.WithPrefix("ses_"),
		UserID:            u.ID,
		RefreshHash:       hashToken(rawRefresh),
		DeviceFingerprint: device.Fingerprint,
		UserAgent:         device.UserAgent,
		IP:                device.IP,
		IssuedAt:          now,
		ExpiresAt:         now.Add(m.cfg.RefreshTTL),
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	access, err := m.signAccess(u, sess.ID, now)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		ExpiresIn:    int64(m.cfg.AccessTTL.Seconds()),
		SessionID:    sess.ID,
	}, nil
}

// enforceSessionLimit revokes the oldest active sessions so that one more
// can be created without exceeding the per-user cap.
func (m *Manager) enforceSessionLimit(ctx context.Context, userID string, now time.Time) error {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	var active []*Session
	for _, s := range sessions {
		if s.Active(now) {
			active = append(active, s)
		}
	}
	if len(active) < m.cfg.MaxSessions {
		return nil
	}
	sort.Slice(active, func(i, j int) bool { return active[i].IssuedAt.Before(active[j].IssuedAt) })
	excess := len(active) - m.cfg.MaxSessions + 1
	for _, s := range active[:excess] {
		s.RevokedAt = &now
		s.RevokeReason = "session_limit"
		if err := m.store.Update(ctx, s); err != nil {
			return fmt.Errorf("revoke excess session: %w", err)
		}
	}
	return nil
}

// Refresh rotates a refresh token: the presented token's session is
// revoked and a fresh pair is issued bound to the same device.
func (m *Manager) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	now := m.now().UTC()

	sess, err := m.store.GetByRefreshHash(ctx, hashToken(rawRefresh))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, errs.Wrap(errs.KindAuthInvalid, "refresh token not found", err)
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	if sess.RevokedAt != nil {
		// A rotated token presented again is a theft signal: kill the
		// whole descendant chain and record the event.
		if sess.RevokeReason == "rotated" {
			m.revokeChain(ctx, sess, now)
			if m.security != nil {
				m.security.Security(ctx, sess.UserID, "auth_failed", map[string]any{
					"reason":    "refresh_token_reuse",
					"sessionId": sess.ID,
				})
			}
		}
		return nil, errs.Wrap(errs.KindAuthInvalid, "refresh token revoked", ErrSessionRevoked)
	}
	if !now.Before(sess.ExpiresAt) {
		return nil, errs.Wrap(errs.KindAuthInvalid, "refresh token expired", ErrSessionExpired)
	}

	u, err := m.users.Get(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, errs.Wrap(errs.KindAuthInvalid, "user not found", err)
		}
		return nil, fmt.Errorf("hydrate principal: %w", err)
	}
	if u.Status == user.StatusSuspended {
		return nil, errs.E(errs.KindForbidden, "account suspended")
	}

	sess.RevokedAt = &now
	sess.RevokeReason = "rotated"
	if err := m.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("revoke predecessor: %w", err)
	}

	rawNext := idgen.Token(32)
	next := &Session{
		ID:                idgen.WithPrefix("ses_"),
		UserID:            sess.UserID,
		RefreshHash:       hashToken(rawNext),
		DeviceFingerprint: sess.DeviceFingerprint,
		UserAgent:         sess.UserAgent,
		IP:                sess.IP,
		IssuedAt:          now,
		ExpiresAt:         now.Add(m.cfg.RefreshTTL),
		RotatedFrom:       sess.ID,
	}
	if err := m.store.Create(ctx, next); err != nil {
		return nil, fmt.Errorf("create rotated session: %w", err)
	}

	access, err := m.signAccess(u, next.ID, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rawNext,
		ExpiresIn:    int64(m.cfg.AccessTTL.Seconds()),
		SessionID:    next.ID,
	}, nil
}

// revokeChain follows rotation successors from sess and revokes each.
func (m *Manager) revokeChain(ctx context.Context, sess *Session, now time.Time) {
	cur := sess
	for i := 0; i < 1000; i++ { // hard bound against store corruption
		next, err := m.store.GetSuccessor(ctx, cur.ID)
		if err != nil || next == nil {
			return
		}
		if next.RevokedAt == nil {
			next.RevokedAt = &now
			next.RevokeReason = "reuse_detected"
			_ = m.store.Update(ctx, next)
		}
		cur = next
	}
}

// Verify parses an access token and re-hydrates the live principal.
func (m *Manager) Verify(ctx context.Context, accessToken string) (*Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.Wrap(errs.KindAuthRequired, "access token expired", err)
		}
		return nil, errs.Wrap(errs.KindAuthRequired, "invalid access token", err)
	}

	u, err := m.users.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, errs.Wrap(errs.KindAuthRequired, "user not found", err)
		}
		return nil, fmt.Errorf("hydrate principal: %w", err)
	}
	if string(u.Role) != claims.Role {
		return nil, errs.Wrap(errs.KindAuthRequired, "role changed, re-authentication required", ErrRoleChanged)
	}
	if u.Status == user.StatusSuspended {
		return nil, errs.E(errs.KindForbidden, "account suspended")
	}
	if u.Status == user.StatusDeleted {
		return nil, errs.Wrap(errs.KindAuthRequired, "user not found", user.ErrNotFound)
	}

	return &Principal{
		ID:        u.ID,
		Role:      u.Role,
		ShopID:    u.ShopID,
		Status:    u.Status,
		Name:      u.Name,
		SessionID: claims.SID,
	}, nil
}

// Revoke revokes a single session (logout).
func (m *Manager) Revoke(ctx context.Context, sessionID, reason string) error {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return errs.Wrap(errs.KindNotFound, "session not found", err)
		}
		return fmt.Errorf("get session: %w", err)
	}
	if sess.RevokedAt != nil {
		return nil
	}
	now := m.now().UTC()
	sess.RevokedAt = &now
	sess.RevokeReason = reason
	if err := m.store.Update(ctx, sess); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForUser mass-revokes every active session for a user.
// Implements user.SessionRevoker for password/role/status changes.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID, reason string) error {
	_, err := m.store.RevokeAllForUser(ctx, userID, reason, m.now().UTC())
	return err
}

func (m *Manager) signAccess(u *user.User, sessionID string, now time.Time) (string, error) {
	claims := &Claims{
		Role:   string(u.Role),
		ShopID: u.ShopID,
		SID:    sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
			ID:        idgen.Hex(8),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
