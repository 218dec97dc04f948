package points

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
)

// Handler provides the /api/points endpoints.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a points handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterProtectedRoutes sets up point routes behind the principal resolver.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/points/summary", h.GetSummary)
	r.GET("/points/history", h.GetHistory)
}

func principalID(c *gin.Context) (string, bool) {
	id := c.GetString("principalId")
	if id == "" {
		httpx.Fail(c, errs.E(errs.KindAuthRequired, "authentication required"))
		return "", false
	}
	return id, true
}

// GetSummary handles GET /api/points/summary
func (h *Handler) GetSummary(c *gin.Context) {
	id, ok := principalID(c)
	if !ok {
		return
	}
	s, err := h.ledger.Summary(c.Request.Context(), id)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, s)
}

// GetHistory handles GET /api/points/history?from=&to=&cursor=&limit=
func (h *Handler) GetHistory(c *gin.Context) {
	id, ok := principalID(c)
	if !ok {
		return
	}
	q := HistoryQuery{
		UserID: id,
		Cursor: c.Query("cursor"),
	}
	q.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
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

	entries, next, err := h.ledger.History(c.Request.Context(), q)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"entries": entries, "nextCursor": next})
}
