package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/auth"
	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
	"github.com/modubeauty/modu/internal/shop"
)

// Handler provides the admin endpoints. The route group it registers on
// already carries auth, RequireAdmin, and the admin IP gate.
type Handler struct {
	service *Service
	shops   *shop.Manager
}

// NewHandler creates an admin handler.
func NewHandler(service *Service, shops *shop.Manager) *Handler {
	return &Handler{service: service, shops: shops}
}

// RegisterAdminRoutes sets up the operator routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.PUT("/shops/:shopId/approve", h.ApproveShop)
	r.POST("/users/bulk-action", h.BulkUserAction)
	r.POST("/points/adjust", h.AdjustPoints)
	r.GET("/reservations/stuck", h.StuckReservations)
	r.POST("/payments/reconcile", h.ReconcilePayments)
}

type approveShopRequest struct {
	Approved       bool     `json:"approved"`
	CommissionRate *float64 `json:"commissionRate"`
	Type           string   `json:"type"`
	Capacity       *int     `json:"capacity"`
}

// ApproveShop handles PUT /api/admin/shops/:shopId/approve
func (h *Handler) ApproveShop(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	var req approveShopRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	s, err := h.shops.Approve(c.Request.Context(), p.ID, c.Param("shopId"), shop.ApproveInput{
		Approved:       req.Approved,
		CommissionRate: req.CommissionRate,
		Type:           req.Type,
		Capacity:       req.Capacity,
	}, c.ClientIP())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, s)
}

type bulkActionRequest struct {
	UserIDs []string `json:"userIds" binding:"required"`
	Action  string   `json:"action" binding:"required"`
	Reason  string   `json:"reason"`
}

// BulkUserAction handles POST /api/admin/users/bulk-action
func (h *Handler) BulkUserAction(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	var req bulkActionRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	results, err := h.service.BulkUserAction(c.Request.Context(), p.ID, BulkActionInput{
		UserIDs: req.UserIDs,
		Action:  req.Action,
		Reason:  req.Reason,
	}, c.ClientIP())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	succeeded := 0
	for _, r := range results {
		if r.OK {
			succeeded++
		}
	}
	httpx.OK(c, http.StatusOK, gin.H{
		"results":   results,
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}

type adjustPointsRequest struct {
	UserID      string `json:"userId" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	Description string `json:"description" binding:"required"`
	ExpiresAt   string `json:"expiresAt"` // RFC3339, credits only
}

// AdjustPoints handles POST /api/admin/points/adjust
func (h *Handler) AdjustPoints(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	var req adjustPointsRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	in := AdjustInput{UserID: req.UserID, Amount: req.Amount, Description: req.Description}
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			httpx.Fail(c, errs.E(errs.KindValidation, "expiresAt must be RFC3339"))
			return
		}
		in.ExpiresAt = &t
	}
	entry, err := h.service.AdjustPoints(c.Request.Context(), p.ID, in, c.ClientIP())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusCreated, entry)
}

// StuckReservations handles GET /api/admin/reservations/stuck?olderThan=24h&limit=100
func (h *Handler) StuckReservations(c *gin.Context) {
	var olderThan time.Duration
	if raw := c.Query("olderThan"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			httpx.Fail(c, errs.E(errs.KindValidation, "olderThan must be a positive duration"))
			return
		}
		olderThan = d
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	stuck, err := h.service.StuckReservations(c.Request.Context(), olderThan, limit)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"reservations": stuck, "count": len(stuck)})
}

// ReconcilePayments handles POST /api/admin/payments/reconcile
func (h *Handler) ReconcilePayments(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	moved, err := h.service.ReconcilePayments(c.Request.Context(), p.ID, c.ClientIP())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"reconciled": moved})
}
