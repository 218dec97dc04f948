package ratelimit

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
	"github.com/modubeauty/modu/internal/logging"
	"github.com/modubeauty/modu/internal/metrics"
)

// SecurityRecorder records limiter violations and blocked admin access.
type SecurityRecorder interface {
	Security(ctx context.Context, actorID, kind string, details map[string]any)
}

// routeFamily buckets paths so one noisy endpoint cannot starve the rest
// of a subject's budget while still sharing a counter across its variants.
func routeFamily(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/")
	if trimmed == path {
		return "other"
	}
	if i := strings.IndexByte(trimmed, '/'); i > 0 {
		return trimmed[:i]
	}
	if trimmed == "" {
		return "other"
	}
	return trimmed
}

// Middleware applies the windowed limit. On public routes it runs before
// auth and the subject is the client IP; the protected group mounts it
// after auth, so there the subject is the authenticated principal.
func Middleware(l *Limiter, security SecurityRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := "ip:" + c.ClientIP()
		scope := "ip"
		if pid := c.GetString("principalId"); pid != "" {
			subject = "user:" + pid
			scope = "principal"
		}
		family := routeFamily(c.Request.URL.Path)

		d, err := l.Allow(c.Request.Context(), subject, family)
		if err != nil {
			// Fail open: a broken counter store must not take the API down.
			logging.L(c.Request.Context()).Error("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if d.Allowed {
			c.Next()
			return
		}

		metrics.RateLimitDeniedTotal.WithLabelValues(scope).Inc()
		if security != nil && d.Violations > 0 {
			security.Security(c.Request.Context(), strings.TrimPrefix(subject, "user:"), "rate_limit_exceeded", map[string]any{
				"subject":    subject,
				"family":     family,
				"violations": d.Violations,
				"ip":         c.ClientIP(),
				"path":       c.Request.URL.Path,
			})
		}
		c.Header("Retry-After", fmt.Sprintf("%d", int(d.RetryAfter.Seconds())+1))
		httpx.Fail(c, errs.E(errs.KindRateLimited, "too many requests"))
	}
}

// AdminIPGate restricts /api/admin routes to allowlisted source addresses.
// Loopback and private ranges always pass so local operators and in-VPC
// tooling are never locked out.
func AdminIPGate(allowlist []string, security SecurityRecorder) gin.HandlerFunc {
	var nets []*net.IPNet
	var ips []net.IP
	for _, entry := range allowlist {
		if _, n, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, n)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			ips = append(ips, ip)
		}
	}

	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil {
			httpx.Fail(c, errs.E(errs.KindForbidden, "source address not permitted"))
			return
		}
		if ip.IsLoopback() || ip.IsPrivate() {
			c.Next()
			return
		}
		for _, n := range nets {
			if n.Contains(ip) {
				c.Next()
				return
			}
		}
		for _, allowed := range ips {
			if allowed.Equal(ip) {
				c.Next()
				return
			}
		}

		if security != nil {
			security.Security(c.Request.Context(), "", "admin_ip_blocked", map[string]any{
				"ip":   c.ClientIP(),
				"path": c.Request.URL.Path,
			})
		}
		httpx.Fail(c, errs.E(errs.KindForbidden, "source address not permitted"))
	}
}
