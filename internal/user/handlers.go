package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
	"github.com/modubeauty/modu/internal/validation"
)

// Handler provides HTTP endpoints for the current user's profile.
type Handler struct {
	service *Service
}

// NewHandler creates a user handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// PrincipalID reads the authenticated principal ID set by the auth
// middleware. Declared here to keep the handler free of an auth import.
func PrincipalID(c *gin.Context) string {
	return c.GetString("principalId")
}

// RegisterRoutes sets up authenticated profile routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/me", h.Me)
	r.POST("/users/me/referred-by", h.SetReferredBy)
}

// Me handles GET /api/users/me
func (h *Handler) Me(c *gin.Context) {
	u, err := h.service.Get(c.Request.Context(), PrincipalID(c))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"user": u})
}

type setReferredByRequest struct {
	Code string `json:"code" binding:"required"`
}

// SetReferredBy handles POST /api/users/me/referred-by
func (h *Handler) SetReferredBy(c *gin.Context) {
	var req setReferredByRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	if !validation.IsValidID(req.Code) {
		httpx.FailKind(c, errs.KindValidation, "malformed referral code")
		return
	}

	if err := h.service.SetReferredBy(c.Request.Context(), PrincipalID(c), req.Code); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OKMessage(c, http.StatusOK, nil, "referral code applied")
}
