package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
	"github.com/modubeauty/modu/internal/pagination"
)

// Handler exposes the admin log queries.
type Handler struct {
	store Store
}

// NewHandler creates an audit query handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterAdminRoutes sets up query routes on the admin group. The group
// already carries auth, RequireAdmin, and the IP gate.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/audit-events", h.QueryAudit)
	r.GET("/security-events", h.QuerySecurity)
}

func parseTimeParam(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httpx.Fail(c, errs.E(errs.KindValidation, name+" must be RFC3339"))
		return time.Time{}, false
	}
	return t, true
}

// parseCursor decodes the opaque page cursor into a store cursor (row ID).
func parseCursor(c *gin.Context) (string, bool) {
	cur, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		httpx.Fail(c, errs.Wrap(errs.KindValidation, "invalid cursor", err))
		return "", false
	}
	if cur == nil {
		return "", true
	}
	return cur.ID, true
}

// QueryAudit handles GET /api/admin/audit-events
func (h *Handler) QueryAudit(c *gin.Context) {
	from, ok := parseTimeParam(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeParam(c, "to")
	if !ok {
		return
	}
	cursor, ok := parseCursor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, next, err := h.store.QueryAudit(c.Request.Context(), AuditQuery{
		ActorID:      c.Query("actorId"),
		ResourceType: c.Query("resourceType"),
		ResourceID:   c.Query("resourceId"),
		From:         from,
		To:           to,
		Cursor:       cursor,
		Limit:        limit,
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if next != "" && len(events) > 0 {
		last := events[len(events)-1]
		next = pagination.Encode(last.CreatedAt, last.ID)
	}
	httpx.OK(c, http.StatusOK, gin.H{"events": events, "nextCursor": next})
}

// QuerySecurity handles GET /api/admin/security-events
func (h *Handler) QuerySecurity(c *gin.Context) {
	from, ok := parseTimeParam(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeParam(c, "to")
	if !ok {
		return
	}
	cursor, ok := parseCursor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, next, err := h.store.QuerySecurity(c.Request.Context(), SecurityQuery{
		ActorID: c.Query("actorId"),
		Kind:    c.Query("kind"),
		From:    from,
		To:      to,
		Cursor:  cursor,
		Limit:   limit,
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if next != "" && len(events) > 0 {
		last := events[len(events)-1]
		next = pagination.Encode(last.CreatedAt, last.ID)
	}
	httpx.OK(c, http.StatusOK, gin.H{"events": events, "nextCursor": next})
}
