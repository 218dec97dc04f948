package shop

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/auth"
	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
)

// Handler provides the /api/shops endpoints.
type Handler struct {
	manager *Manager
}

// NewHandler creates a shop handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes sets up the public directory routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/shops", h.Browse)
	r.GET("/shops/:shopId", h.GetShop)
	r.GET("/shops/:shopId/services", h.ListServices)
}

// RegisterProtectedRoutes sets up shop routes behind the principal resolver.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/shops", h.Register)
}

// RegisterShopRoutes sets up routes on the tenancy-gated /shops/:shopId group.
func (h *Handler) RegisterShopRoutes(r *gin.RouterGroup) {
	r.POST("/services", h.AddService)
	r.PATCH("/services/:serviceId", h.UpdateService)
}

// Browse handles GET /api/shops. Lists bookable shops.
func (h *Handler) Browse(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	shops, err := h.manager.Browse(c.Request.Context(), limit, offset)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"shops": shops, "count": len(shops)})
}

// GetShop handles GET /api/shops/:shopId. Unverified and suspended shops
// are hidden from the public directory.
func (h *Handler) GetShop(c *gin.Context) {
	s, err := h.manager.Get(c.Request.Context(), c.Param("shopId"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if !s.Bookable() {
		httpx.FailKind(c, errs.KindNotFound, "shop not found")
		return
	}
	httpx.OK(c, http.StatusOK, s)
}

// ListServices handles GET /api/shops/:shopId/services.
func (h *Handler) ListServices(c *gin.Context) {
	ctx := c.Request.Context()
	s, err := h.manager.Get(ctx, c.Param("shopId"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	services, err := h.manager.ListServices(ctx, s.ID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"services": services, "count": len(services)})
}

type registerRequest struct {
	Name    string `json:"name" binding:"required"`
	Type    string `json:"type"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Register handles POST /api/shops. Any authenticated user may apply; the
// shop stays pending until an admin approves it.
func (h *Handler) Register(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	var req registerRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}

	s, err := h.manager.Register(c.Request.Context(), RegisterInput{
		OwnerID: p.ID,
		Name:    req.Name,
		Type:    req.Type,
		Address: req.Address,
		Phone:   req.Phone,
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OKMessage(c, http.StatusCreated, s, "shop application submitted")
}

type serviceRequest struct {
	Name            string `json:"name" binding:"required"`
	PriceMin        int64  `json:"priceMin"`
	PriceMax        int64  `json:"priceMax"`
	DurationMinutes int    `json:"durationMinutes" binding:"required"`
	Available       *bool  `json:"available"`
}

func (r *serviceRequest) input() ServiceInput {
	return ServiceInput{
		Name:            r.Name,
		PriceMin:        r.PriceMin,
		PriceMax:        r.PriceMax,
		DurationMinutes: r.DurationMinutes,
		Available:       r.Available,
	}
}

// AddService handles POST /api/shops/:shopId/services
func (h *Handler) AddService(c *gin.Context) {
	s, ok := FromContext(c)
	if !ok {
		httpx.FailKind(c, errs.KindInternal, "shop missing from context")
		return
	}
	var req serviceRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}

	svc, err := h.manager.AddService(c.Request.Context(), s.ID, req.input())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusCreated, svc)
}

// UpdateService handles PATCH /api/shops/:shopId/services/:serviceId
func (h *Handler) UpdateService(c *gin.Context) {
	s, ok := FromContext(c)
	if !ok {
		httpx.FailKind(c, errs.KindInternal, "shop missing from context")
		return
	}
	var req serviceRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}

	svc, err := h.manager.UpdateService(c.Request.Context(), s.ID, c.Param("serviceId"), req.input())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, svc)
}
