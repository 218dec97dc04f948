// Package httpx renders the response envelope and is the single place that
// maps error kinds to HTTP status codes.
//
// Every endpoint responds with one of:
//
//	{ "success": true,  "data": ..., "message"?: ... }
//	{ "success": false, "error": { "code", "message", "details"?, "timestamp" } }
package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/logging"
)

type errorBody struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// statusByKind is the only kind -> HTTP status table in the codebase.
var statusByKind = map[errs.Kind]int{
	errs.KindValidation:         http.StatusBadRequest,
	errs.KindAuthRequired:       http.StatusUnauthorized,
	errs.KindAuthInvalid:        http.StatusUnauthorized,
	errs.KindForbidden:          http.StatusForbidden,
	errs.KindForbiddenCrossShop: http.StatusForbidden,
	errs.KindNotFound:           http.StatusNotFound,
	errs.KindConflictState:      http.StatusConflict,
	errs.KindConflictSlot:       http.StatusConflict,
	errs.KindConflictIdempotent: http.StatusConflict,
	errs.KindInsufficientPoints: http.StatusUnprocessableEntity,
	errs.KindDuplicateUser:      http.StatusConflict,
	errs.KindGatewayUnavailable: http.StatusBadGateway,
	errs.KindRateLimited:        http.StatusTooManyRequests,
	errs.KindInternal:           http.StatusInternalServerError,
}

// StatusOf returns the HTTP status for an error kind.
func StatusOf(kind errs.Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// OK writes a success envelope.
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// OKMessage writes a success envelope with a human-readable message.
func OKMessage(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{"success": true, "data": data, "message": message})
}

// Fail writes an error envelope for err and aborts the handler chain.
// Uncoded errors are treated as internal: the cause is logged with the
// request correlation ID and the response carries only the code and ID.
func Fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	kind := errs.KindOf(err)
	body := errorBody{
		Code:      string(kind),
		Message:   errs.Message(err),
		Details:   errs.Details(err),
		Timestamp: time.Now().UTC(),
	}

	if kind == errs.KindInternal {
		logging.L(ctx).Error("request failed", "error", err, "path", c.FullPath())
		body.Message = "internal error"
		if rid := logging.RequestID(ctx); rid != "" {
			body.Details = gin.H{"requestId": rid}
		} else {
			body.Details = nil
		}
	}

	c.AbortWithStatusJSON(StatusOf(kind), gin.H{"success": false, "error": body})
}

// FailKind is shorthand for Fail with a freshly coded error.
func FailKind(c *gin.Context, kind errs.Kind, message string) {
	Fail(c, errs.E(kind, message))
}

// BindJSON decodes the request body into dst, reporting malformed input as
// a validation error suitable for Fail.
func BindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errs.E(errs.KindValidation, "request body too large")
		}
		return errs.Wrap(errs.KindValidation, "invalid request body", err)
	}
	return nil
}
