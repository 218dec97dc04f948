package identity

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/auth"
	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
)

// Handler provides the identity verification endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates an identity handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up the authenticated verification routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/identity-verification/prepare", h.Prepare)
	r.POST("/identity-verification/verify", h.Verify)
	r.GET("/identity-verification/status/:id", h.Status)
}

type prepareRequest struct {
	VerificationID string `json:"verificationId" binding:"required"`
	MinAge         int    `json:"minAge"`
	Carrier        string `json:"carrier"`
	Title          string `json:"title"`
}

// Prepare handles POST /api/identity-verification/prepare
func (h *Handler) Prepare(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	var req prepareRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	result, err := h.service.Prepare(c.Request.Context(), req.VerificationID, p.ID, Restrictions{
		MinAge:  req.MinAge,
		Carrier: req.Carrier,
		Title:   req.Title,
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusCreated, result)
}

type verifyRequest struct {
	VerificationID string `json:"verificationId" binding:"required"`
}

// Verify handles POST /api/identity-verification/verify
func (h *Handler) Verify(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	var req verifyRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	rec, err := h.service.Verify(c.Request.Context(), req.VerificationID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if rec.UserID != p.ID && !p.IsAdmin() {
		httpx.FailKind(c, errs.KindNotFound, "verification not found")
		return
	}
	httpx.OK(c, http.StatusOK, rec)
}

// Status handles GET /api/identity-verification/status/:id
func (h *Handler) Status(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	rec, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if rec.UserID != p.ID && !p.IsAdmin() {
		httpx.FailKind(c, errs.KindNotFound, "verification not found")
		return
	}
	httpx.OK(c, http.StatusOK, rec)
}
