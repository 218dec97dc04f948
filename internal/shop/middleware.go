package shop

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/auth"
	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
)

// ContextKeyShop holds the resolved *Shop in gin context after the gate.
const ContextKeyShop = "shop"

// shopIDPattern is checked before the path value reaches any query.
var shopIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SecurityRecorder records cross-tenant access attempts.
type SecurityRecorder interface {
	Security(ctx context.Context, actorID, kind string, details map[string]any)
}

// Gate enforces tenancy on /api/shops/:shopId/... routes.
//
// The gate is deliberately redundant with the row-level policies set by
// the DB session manager: a bug in either layer leaves the other one
// standing. Handlers still carry shop_id in every data-plane predicate.
func Gate(m *Manager, security SecurityRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID := c.Param("shopId")
		if shopID == "" || len(shopID) > 64 || !shopIDPattern.MatchString(shopID) {
			httpx.Fail(c, errs.E(errs.KindValidation, "malformed shop id"))
			return
		}

		p := auth.MustPrincipal(c)
		if p == nil {
			return
		}

		s, err := m.Get(c.Request.Context(), shopID)
		if err != nil {
			httpx.Fail(c, err)
			return
		}

		// Customers pass through: their rows are scoped by customer_id in
		// every handler. Shop principals must match the path tenant.
		if !p.IsAdmin() && p.Role.IsShopRole() && p.ShopID != shopID {
			if security != nil {
				security.Security(c.Request.Context(), p.ID, "unauthorized_shop_access_attempt", map[string]any{
					"attemptedShopId": shopID,
					"principalShopId": p.ShopID,
					"path":            c.Request.URL.Path,
					"method":          c.Request.Method,
				})
			}
			httpx.Fail(c, errs.E(errs.KindForbiddenCrossShop, "principal does not belong to this shop"))
			return
		}

		if s.Status == StatusSuspended || s.Status == StatusDeleted {
			httpx.Fail(c, errs.E(errs.KindForbidden, "shop is not available"))
			return
		}

		c.Set(ContextKeyShop, s)
		c.Next()
	}
}

// FromContext returns the shop attached by the gate.
func FromContext(c *gin.Context) (*Shop, bool) {
	v, ok := c.Get(ContextKeyShop)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Shop)
	return s, ok
}
