// Package validation provides input validation helpers for the Modu API.
package validation

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

// MaxBulkItems bounds batch admin operations
const MaxBulkItems = 100

var (
	// idRegex validates resource identifiers appearing in URL paths.
	// Anything outside this charset is rejected before it reaches a query.
	idRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// emailRegex is deliberately loose; the mail system is the real validator
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	// phoneRegex accepts Korean mobile numbers with or without hyphens
	phoneRegex = regexp.MustCompile(`^01[016789]-?\d{3,4}-?\d{4}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidID checks a path identifier (shop IDs, reservation IDs, ...).
func IsValidID(id string) bool {
	return id != "" && len(id) <= 64 && idRegex.MatchString(id)
}

// IsValidEmail checks an email address shape.
func IsValidEmail(email string) bool {
	return len(email) <= 254 && emailRegex.MatchString(email)
}

// IsValidPhone checks a Korean mobile number.
func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// FutureTime reports whether t is strictly after now. Reservation datetimes
// in the past are always rejected.
func FutureTime(t time.Time, now time.Time) bool {
	return t.After(now)
}

// RoundToGranularity truncates t down to the slot granularity used by the
// reservation engine (e.g. 30m slots).
func RoundToGranularity(t time.Time, granularity time.Duration) time.Time {
	if granularity <= 0 {
		return t
	}
	return t.Truncate(granularity)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs all validators and collects their failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidID checks that a field is a well-formed resource identifier.
func ValidID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // use Required for required fields
		}
		if !IsValidID(value) {
			return &ValidationError{Field: field, Message: "must contain only letters, digits, '-' and '_'"}
		}
		return nil
	}
}

// ValidEmail checks that a field looks like an email address.
func ValidEmail(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidEmail(value) {
			return &ValidationError{Field: field, Message: "must be a valid email address"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// PositiveAmount checks that a KRW or point amount is strictly positive.
func PositiveAmount(field string, amount int64) func() *ValidationError {
	return func() *ValidationError {
		if amount <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}
