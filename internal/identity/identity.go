// Package identity implements real-name verification through an external
// broker (PASS-style carrier identity). The broker hands the client a token,
// runs the carrier flow, and holds the authoritative result; the server
// fetches that result, re-checks restrictions, and enforces that one real
// person (CI) maps to at most one living account.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("identity: verification not found")
)

// Status is a verification record's state.
type Status string

const (
	StatusReady    Status = "ready"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

// Restrictions are typed bypass parameters forwarded to the broker and
// re-checked server-side after the result comes back.
type Restrictions struct {
	MinAge  int    `json:"minAge,omitempty"`
	Carrier string `json:"carrier,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Record is one verification attempt. CI (connecting information) is the
// broker's stable per-person key; DI is per-service. BirthDate is YYYYMMDD.
type Record struct {
	ID             string       `json:"id"`
	VerificationID string       `json:"verificationId"` // broker-side key
	UserID         string       `json:"userId"`
	Status         Status       `json:"status"`
	Restrictions   Restrictions `json:"restrictions"`
	CI             string       `json:"-"`
	DI             string       `json:"-"`
	Name           string       `json:"name,omitempty"`
	BirthDate      string       `json:"birthDate,omitempty"`
	Gender         string       `json:"gender,omitempty"`
	Operator       string       `json:"operator,omitempty"`
	FailReason     string       `json:"failReason,omitempty"`
	VerifiedAt     *time.Time   `json:"verifiedAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Store persists verification records.
type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	GetByVerificationID(ctx context.Context, verificationID string) (*Record, error)
	Update(ctx context.Context, r *Record) error
	// ListVerifiedByCI returns every verified record carrying ci. The
	// service filters out records whose holder was deleted.
	ListVerifiedByCI(ctx context.Context, ci string) ([]*Record, error)
}

// BrokerResult is the broker's authoritative outcome for one verification.
type BrokerResult struct {
	Success    bool   `json:"success"`
	CI         string `json:"ci"`
	DI         string `json:"di"`
	Name       string `json:"name"`
	BirthDate  string `json:"birthDate"` // YYYYMMDD
	Gender     string `json:"gender"`
	Operator   string `json:"operator"`
	FailReason string `json:"failReason,omitempty"`
}

// Broker is the external identity provider. The HTTP implementation is
// circuit-broken; a fake implements it for tests.
type Broker interface {
	// Prepare registers the verification and returns the client token the
	// app hands to the broker SDK.
	Prepare(ctx context.Context, verificationID string, r Restrictions) (string, error)
	// Result fetches the authoritative outcome.
	Result(ctx context.Context, verificationID string) (*BrokerResult, error)
}
