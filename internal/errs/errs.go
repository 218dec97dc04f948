// Package errs defines the error taxonomy shared by every domain package.
//
// Domain code reports failures as coded errors; the HTTP layer maps each
// code to a status exactly once (internal/httpx). Codes are stable API:
// clients switch on them, so renaming one is a breaking change.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable error code.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindAuthRequired       Kind = "auth_required"
	KindAuthInvalid        Kind = "auth_invalid"
	KindForbidden          Kind = "forbidden"
	KindForbiddenCrossShop Kind = "forbidden_cross_shop"
	KindNotFound           Kind = "not_found"
	KindConflictState      Kind = "conflict_state"
	KindConflictSlot       Kind = "conflict_slot"
	KindConflictIdempotent Kind = "conflict_idempotent"
	KindInsufficientPoints Kind = "insufficient_points"
	KindDuplicateUser      Kind = "duplicate_user"
	KindGatewayUnavailable Kind = "gateway_unavailable"
	KindRateLimited        Kind = "rate_limited"
	KindInternal           Kind = "internal"
)

// Error carries a Kind across layer boundaries. Details, when set, is
// serialized into the response envelope as-is.
type Error struct {
	Kind    Kind
	Message string
	Details any
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// E creates a coded error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Ef creates a coded error with a formatted message.
func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error. The cause stays
// reachable through errors.Is / errors.As.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, err: err}
}

// WithDetails returns a copy carrying structured details for the client.
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// KindOf extracts the Kind from an error chain. Uncoded errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the client-safe message for an error chain. Uncoded
// errors return a generic message so internals never leak to clients.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Details returns the structured details from an error chain, if any.
func Details(err error) any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
