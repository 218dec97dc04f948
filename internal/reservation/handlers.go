package reservation

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

// Handler provides the tenancy-scoped reservation endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a reservation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterShopRoutes sets up routes on the gated /shops/:shopId group.
func (h *Handler) RegisterShopRoutes(r *gin.RouterGroup) {
	r.GET("/reservations", h.List)
	r.GET("/reservations/:reservationId", h.Get)
	r.POST("/reservations", h.Create)
	r.PATCH("/reservations/:reservationId", h.Transition)
}

// customerScoped reports whether the principal only sees its own rows. The
// shop gate admits customers into any shop's routes; the customer_id
// predicate here is what keeps them out of other customers' bookings.
func customerScoped(p *auth.Principal) bool {
	return !p.IsAdmin() && !p.Role.IsShopRole()
}

type createRequest struct {
	CustomerID    string   `json:"customerId" binding:"required"`
	ServiceIDs    []string `json:"serviceIds" binding:"required"`
	Datetime      string   `json:"datetime" binding:"required"` // RFC3339
	PointsToApply int64    `json:"pointsToApply"`
	Memo          string   `json:"memo"`
}

// Create handles POST /api/shops/:shopId/reservations
func (h *Handler) Create(c *gin.Context) {
	s, ok := shop.FromContext(c)
	if !ok {
		httpx.FailKind(c, errs.KindInternal, "shop missing from context")
		return
	}
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	var req createRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	dt, err := time.Parse(time.RFC3339, req.Datetime)
	if err != nil {
		httpx.Fail(c, errs.E(errs.KindValidation, "datetime must be RFC3339"))
		return
	}

	res, err := h.service.Create(c.Request.Context(), CreateInput{
		ShopID:        s.ID,
		CustomerID:    req.CustomerID,
		ServiceIDs:    req.ServiceIDs,
		Datetime:      dt,
		PointsToApply: req.PointsToApply,
		Memo:          req.Memo,
		ActorID:       p.ID,
		IP:            c.ClientIP(),
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusCreated, res)
}

// Get handles GET /api/shops/:shopId/reservations/:reservationId
func (h *Handler) Get(c *gin.Context) {
	s, ok := shop.FromContext(c)
	if !ok {
		httpx.FailKind(c, errs.KindInternal, "shop missing from context")
		return
	}
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	res, err := h.service.Get(c.Request.Context(), c.Param("reservationId"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if res.ShopID != s.ID || (customerScoped(p) && res.CustomerID != p.ID) {
		httpx.FailKind(c, errs.KindNotFound, "reservation not found")
		return
	}
	logs, err := h.service.StatusLogs(c.Request.Context(), res.ID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"reservation": res, "statusLog": logs})
}

// List handles GET /api/shops/:shopId/reservations?from=&to=&status=
func (h *Handler) List(c *gin.Context) {
	s, ok := shop.FromContext(c)
	if !ok {
		httpx.FailKind(c, errs.KindInternal, "shop missing from context")
		return
	}
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	q := ListQuery{ShopID: s.ID, Status: Status(c.Query("status"))}
	if customerScoped(p) {
		q.CustomerID = p.ID
	}
	if q.Status != "" && !q.Status.Valid() {
		httpx.Fail(c, errs.E(errs.KindValidation, "unknown status"))
		return
	}
	q.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	q.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	for name, dst := range map[string]*time.Time{"from": &q.From, "to": &q.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Fail(c, errs.E(errs.KindValidation, name+" must be RFC3339"))
			return
		}
		*dst = t
	}

	reservations, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"reservations": reservations, "count": len(reservations)})
}

type transitionRequest struct {
	To     string `json:"to" binding:"required"`
	Reason string `json:"reason"`
}

// Transition handles PATCH /api/shops/:shopId/reservations/:reservationId
func (h *Handler) Transition(c *gin.Context) {
	s, ok := shop.FromContext(c)
	if !ok {
		httpx.FailKind(c, errs.KindInternal, "shop missing from context")
		return
	}
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	var req transitionRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}

	res, err := h.service.Get(c.Request.Context(), c.Param("reservationId"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if res.ShopID != s.ID || (customerScoped(p) && res.CustomerID != p.ID) {
		httpx.FailKind(c, errs.KindNotFound, "reservation not found")
		return
	}

	res, err = h.service.Transition(c.Request.Context(), res.ID, Status(req.To), p.ID, req.Reason)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, res)
}
