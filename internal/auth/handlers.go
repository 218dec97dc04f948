package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
	"github.com/modubeauty/modu/internal/logging"
	"github.com/modubeauty/modu/internal/user"
	"github.com/modubeauty/modu/internal/validation"
)

// PushRegistrar maintains the device push-token registry. Implemented by
// the notification service; nil disables push registration on login.
type PushRegistrar interface {
	Register(ctx context.Context, userID, token, platform, deviceID string) error
	DeactivateDevice(ctx context.Context, userID, deviceID string) error
}

// Handler provides the /api/auth endpoints.
type Handler struct {
	manager *Manager
	users   *user.Service
	push    PushRegistrar
}

// NewHandler creates an auth handler.
func NewHandler(manager *Manager, users *user.Service) *Handler {
	return &Handler{manager: manager, users: users}
}

// WithPushRegistrar attaches the push-token registry.
func (h *Handler) WithPushRegistrar(p PushRegistrar) *Handler {
	h.push = p
	return h
}

// RegisterRoutes sets up public auth routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/social-login", h.SocialLogin)
	r.POST("/auth/refresh", h.Refresh)
}

// RegisterProtectedRoutes sets up auth routes behind the principal resolver.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/auth/logout", h.Logout)
}

type deviceRequest struct {
	DeviceID  string `json:"deviceId"`
	PushToken string `json:"pushToken"`
	Platform  string `json:"platform"` // "ios" | "android"
	UserAgent string `json:"userAgent"`
}

type signupRequest struct {
	Email          string        `json:"email" binding:"required"`
	Password       string        `json:"password" binding:"required"`
	Name           string        `json:"name" binding:"required"`
	Phone          string        `json:"phone"`
	ReferredByCode string        `json:"referredByCode"`
	Device         deviceRequest `json:"device"`
}

// Signup handles POST /api/auth/signup
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	if verrs := validation.Validate(
		validation.ValidEmail("email", req.Email),
		validation.MaxLength("name", req.Name, 100),
	); len(verrs) > 0 {
		httpx.Fail(c, errs.E(errs.KindValidation, verrs.Error()).WithDetails(verrs))
		return
	}

	ctx := c.Request.Context()
	u, err := h.users.Signup(ctx, user.SignupInput{
		Email:          req.Email,
		Password:       req.Password,
		Name:           req.Name,
		Phone:          req.Phone,
		ReferredByCode: req.ReferredByCode,
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}

	pair, err := h.issueWithDevice(ctx, c, u, req.Device)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusCreated, gin.H{"user": u, "tokens": pair})
}

type loginRequest struct {
	Email    string        `json:"email" binding:"required"`
	Password string        `json:"password" binding:"required"`
	Device   deviceRequest `json:"device"`
}

// Login handles POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}

	ctx := c.Request.Context()
	u, err := h.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		httpx.Fail(c, err)
		return
	}

	pair, err := h.issueWithDevice(ctx, c, u, req.Device)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"user": u, "tokens": pair})
}

type socialLoginRequest struct {
	Provider       string        `json:"provider" binding:"required"` // kakao | apple | google | naver
	ProviderUserID string        `json:"providerUserId" binding:"required"`
	Email          string        `json:"email"`
	Name           string        `json:"name"`
	Device         deviceRequest `json:"device"`
}

var knownProviders = map[string]bool{"kakao": true, "apple": true, "google": true, "naver": true}

// SocialLogin handles POST /api/auth/social-login. The provider token has
// already been exchanged by the provider client; this receives the
// asserted subject.
func (h *Handler) SocialLogin(c *gin.Context) {
	var req socialLoginRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	if !knownProviders[req.Provider] {
		httpx.FailKind(c, errs.KindValidation, "unknown provider")
		return
	}

	ctx := c.Request.Context()
	u, err := h.users.AuthenticateSocial(ctx, req.Provider, req.ProviderUserID, req.Email, req.Name)
	if err != nil {
		httpx.Fail(c, err)
		return
	}

	pair, err := h.issueWithDevice(ctx, c, u, req.Device)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"user": u, "tokens": pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh handles POST /api/auth/refresh
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}

	pair, err := h.manager.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"tokens": pair})
}

type logoutRequest struct {
	DeviceID string `json:"deviceId"`
}

// Logout handles POST /api/auth/logout. Revokes the current session and
// deactivates the device's push token.
func (h *Handler) Logout(c *gin.Context) {
	p := MustPrincipal(c)
	if p == nil {
		return
	}
	var req logoutRequest
	_ = c.ShouldBindJSON(&req) // body optional

	ctx := c.Request.Context()
	if p.SessionID != "" {
		if err := h.manager.Revoke(ctx, p.SessionID, "logout"); err != nil {
			httpx.Fail(c, err)
			return
		}
	}
	if h.push != nil && req.DeviceID != "" {
		if err := h.push.DeactivateDevice(ctx, p.ID, req.DeviceID); err != nil {
			logging.L(ctx).Warn("deactivate push token on logout", "error", err)
		}
	}
	httpx.OKMessage(c, http.StatusOK, nil, "logged out")
}

// issueWithDevice issues a token pair and registers the device push token
// when one is supplied. Push failures never fail the login.
func (h *Handler) issueWithDevice(ctx context.Context, c *gin.Context, u *user.User, device deviceRequest) (*TokenPair, error) {
	pair, err := h.manager.Issue(ctx, u, DeviceInfo{
		Fingerprint: device.DeviceID,
		UserAgent:   device.UserAgent,
		IP:          c.ClientIP(),
	})
	if err != nil {
		return nil, err
	}
	if h.push != nil && device.PushToken != "" {
		if err := h.push.Register(ctx, u.ID, device.PushToken, device.Platform, device.DeviceID); err != nil {
			logging.L(ctx).Warn("register push token", "error", err)
		}
	}
	return pair, nil
}
