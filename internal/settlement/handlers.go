package settlement

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/auth"
	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
	"github.com/modubeauty/modu/internal/shop"
)

// Handler provides the settlement report endpoint.
type Handler struct {
	service *Service
}

// NewHandler creates a settlement handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterShopRoutes sets up routes on the gated /shops/:shopId group.
func (h *Handler) RegisterShopRoutes(r *gin.RouterGroup) {
	r.GET("/settlement", h.Report)
}

// Report handles GET /api/shops/:shopId/settlement?from=&to=
// Payout figures are for the shop owner and platform admins only.
func (h *Handler) Report(c *gin.Context) {
	s, ok := shop.FromContext(c)
	if !ok {
		httpx.FailKind(c, errs.KindInternal, "shop missing from context")
		return
	}
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	if s.OwnerID != p.ID && !p.IsAdmin() {
		httpx.FailKind(c, errs.KindForbidden, "settlement is visible to the shop owner only")
		return
	}

	var from, to time.Time
	for name, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := c.Query(name)
		if raw == "" {
			httpx.Fail(c, errs.E(errs.KindValidation, name+" is required"))
			return
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Fail(c, errs.E(errs.KindValidation, name+" must be RFC3339"))
			return
		}
		*dst = t
	}

	report, err := h.service.Report(c.Request.Context(), s.ID, from, to)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, report)
}
