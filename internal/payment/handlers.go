package payment

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/auth"
	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/httpx"
	"github.com/modubeauty/modu/internal/metrics"
)

// Webhook headers the gateway signs deliveries with.
const (
	HeaderSignature = "X-Gateway-Signature"
	HeaderTimestamp = "X-Gateway-Timestamp"
)

// maxWebhookBody bounds the raw body read for signature verification.
const maxWebhookBody = 64 << 10

// Handler provides the payment endpoints.
type Handler struct {
	orch   *Orchestrator
	secret []byte
	skew   time.Duration
	now    func() time.Time
}

// NewHandler creates a payment handler. secret is the HMAC key shared with
// the gateway; skew bounds webhook timestamp drift.
func NewHandler(orch *Orchestrator, secret []byte, skew time.Duration) *Handler {
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	return &Handler{orch: orch, secret: secret, skew: skew, now: time.Now}
}

// RegisterRoutes sets up the unauthenticated webhook route. The signature
// is the authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/payments", h.Webhook)
}

// RegisterProtectedRoutes sets up the authenticated payment routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	// The id on initiate is the reservation being paid for; the payment
	// record does not exist yet.
	r.POST("/payments/:id/initiate", h.Initiate)
	r.GET("/payments/:id", h.Get)
}

type initiateRequest struct {
	Method        string `json:"method" binding:"required"`
	PointsToApply int64  `json:"pointsToApply"`
}

// Initiate handles POST /api/payments/:id/initiate
func (h *Handler) Initiate(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	var req initiateRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	result, err := h.orch.Initiate(c.Request.Context(), c.Param("id"), InitiateInput{
		Method:        req.Method,
		PointsToApply: req.PointsToApply,
		ActorID:       p.ID,
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, http.StatusCreated, result)
}

// Get handles GET /api/payments/:id
func (h *Handler) Get(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if p == nil {
		return
	}
	pay, err := h.orch.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	// Payments are visible to the payer and admins only.
	if pay.UserID != p.ID && !p.IsAdmin() {
		httpx.FailKind(c, errs.KindNotFound, "payment not found")
		return
	}
	httpx.OK(c, http.StatusOK, pay)
}

// Webhook handles POST /api/webhooks/payments
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		httpx.FailKind(c, errs.KindValidation, "unreadable body")
		return
	}

	if !VerifyTimestamp(c.GetHeader(HeaderTimestamp), h.now(), h.skew) {
		metrics.WebhookEventsTotal.WithLabelValues("stale_timestamp").Inc()
		httpx.FailKind(c, errs.KindAuthInvalid, "timestamp outside the allowed window")
		return
	}
	if !VerifySignature(h.secret, body, c.GetHeader(HeaderSignature)) {
		metrics.WebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
		httpx.FailKind(c, errs.KindAuthInvalid, "signature mismatch")
		return
	}

	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("invalid_payload").Inc()
		httpx.FailKind(c, errs.KindValidation, "malformed event payload")
		return
	}

	duplicate, err := h.orch.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		httpx.Fail(c, err)
		return
	}
	if duplicate {
		metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		httpx.OK(c, http.StatusOK, gin.H{"duplicate": true})
		return
	}
	metrics.WebhookEventsTotal.WithLabelValues("processed").Inc()
	httpx.OK(c, http.StatusOK, gin.H{"processed": true})
}
