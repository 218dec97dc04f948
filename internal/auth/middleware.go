package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
	"github.com/modubeauty/modu/internal/user"
)

const (
	// ContextKeyPrincipal holds the resolved *Principal in gin context.
	ContextKeyPrincipal = "principal"
	// ContextKeyPrincipalID holds the principal ID for packages that only
	// need the ID and should not import auth.
	ContextKeyPrincipalID = "principalId"
)

// Middleware resolves the bearer token into a live principal and attaches
// it to the request. Applied to every protected route.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httpx.Fail(c, errs.E(errs.KindAuthRequired, "authorization header required"))
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httpx.Fail(c, errs.E(errs.KindAuthRequired, "authorization header must be a bearer token"))
			return
		}

		principal, err := m.Verify(c.Request.Context(), token)
		if err != nil {
			httpx.Fail(c, err)
			return
		}

		c.Set(ContextKeyPrincipal, principal)
		c.Set(ContextKeyPrincipalID, principal.ID)
		c.Next()
	}
}

// GetPrincipal returns the resolved principal from gin context.
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(ContextKeyPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}

// MustPrincipal returns the principal or aborts with auth_required.
// Only call behind Middleware.
func MustPrincipal(c *gin.Context) *Principal {
	p, ok := GetPrincipal(c)
	if !ok {
		httpx.Fail(c, errs.E(errs.KindAuthRequired, "authentication required"))
		return nil
	}
	return p
}

// RequireRole rejects principals whose role is not in the allowed set.
func RequireRole(roles ...user.Role) gin.HandlerFunc {
	allowed := make(map[user.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			httpx.Fail(c, errs.E(errs.KindAuthRequired, "authentication required"))
			return
		}
		if _, ok := allowed[p.Role]; !ok {
			httpx.Fail(c, errs.E(errs.KindForbidden, "insufficient role"))
			return
		}
		c.Next()
	}
}

// RequireAdmin is shorthand for RequireRole(admin, super_admin).
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(user.RoleAdmin, user.RoleSuperAdmin)
}
