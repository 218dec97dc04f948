package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/auth"
	"github.com/modubeauty/modu/internal/httpx"
)

var _ auth.PushRegistrar = (*Registry)(nil)

// Handler provides the device push token endpoints.
type Handler struct {
	registry *Registry
}

// NewHandler creates a notification handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterProtectedRoutes sets up the authenticated token routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/users/me/push-tokens", h.RegisterToken)
	r.DELETE("/users/me/push-tokens/:deviceId", h.DeactivateToken)
	r.GET("/users/me/push-tokens", h.ListTokens)
}

type registerTokenRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"required"`
	DeviceID string `json:"deviceId" binding:"required"`
}

// RegisterToken handles POST /api/users/me/push-tokens
func (h *Handler) RegisterToken(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	var req registerTokenRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	if err := h.registry.Register(c.Request.Context(), p.ID, req.Token, req.Platform, req.DeviceID); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OKMessage(c, http.StatusCreated, nil, "push token registered")
}

// DeactivateToken handles DELETE /api/users/me/push-tokens/:deviceId
func (h *Handler) DeactivateToken(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	if err := h.registry.DeactivateDevice(c.Request.Context(), p.ID, c.Param("deviceId")); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OKMessage(c, http.StatusOK, nil, "push token deactivated")
}

// ListTokens handles GET /api/users/me/push-tokens
func (h *Handler) ListTokens(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	devices, err := h.registry.Devices(c.Request.Context(), p.ID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
}
