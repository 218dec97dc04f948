// Package reservation books shop services into time slots and walks each
// booking through its lifecycle. Slot admission is capacity-based: a shop
// with capacity N accepts at most N overlapping confirmed or in-progress
// reservations.
package reservation

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"time"
)

var (
	ErrNotFound = errors.New("reservation: not found")
)

// Status is a reservation's lifecycle state.
type Status string

const (
	StatusRequested       Status = "requested"
	StatusConfirmed       Status = "confirmed"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusCancelledByUser Status = "cancelled_by_user"
	StatusCancelledByShop Status = "cancelled_by_shop"
	StatusNoShow          Status = "no_show"
	StatusExpired         Status = "expired"
)

// transitions is the complete lifecycle table. Terminal states have no row.
var transitions = map[Status][]Status{
	StatusRequested:  {StatusConfirmed, StatusCancelledByUser, StatusCancelledByShop, StatusExpired},
	StatusConfirmed:  {StatusInProgress, StatusCancelledByUser, StatusCancelledByShop, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status is final.
func (s Status) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

// IsCancellation reports whether the status releases held resources.
func (s Status) IsCancellation() bool {
	switch s {
	case StatusCancelledByUser, StatusCancelledByShop, StatusExpired, StatusNoShow:
		return true
	}
	return false
}

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusCancelledByUser, StatusCancelledByShop, StatusNoShow, StatusExpired:
		return true
	}
	return false
}

// Reservation is one booking.
type Reservation struct {
	ID              string    `json:"id"`
	ShopID          string    `json:"shopId"`
	CustomerID      string    `json:"customerId"`
	ServiceIDs      []string  `json:"serviceIds"`
	Datetime        time.Time `json:"datetime"`
	EndTime         time.Time `json:"endTime"`
	DurationMinutes int       `json:"durationMinutes"`
	TotalAmount     int64     `json:"totalAmount"` // KRW, sum of service minimum prices
	PointsUsed      int64     `json:"pointsUsed"`
	Status          Status    `json:"status"`
	Memo            string    `json:"memo,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Overlaps reports whether the reservation intersects [start, end).
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.Datetime.Before(end) && start.Before(r.EndTime)
}

// StatusLog is one transition record. Every state change appends a row.
type StatusLog struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"reservationId"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	Actor         string    `json:"actor"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}

// ListQuery filters a shop's reservations. CustomerID narrows the result to
// one customer's rows for non-staff callers.
type ListQuery struct {
	ShopID     string
	CustomerID string
	From       time.Time
	To         time.Time
	Status     Status
	Limit      int
	Offset     int
}

// Store persists reservations and their status logs.
type Store interface {
	// CreateLocked inserts res after serializing on the shop's day bucket
	// and verifying that confirmed/in-progress overlaps stay under
	// capacity. fn runs inside the same critical section (tx is nil for
	// non-SQL stores); a non-nil error from fn aborts the insert.
	CreateLocked(ctx context.Context, res *Reservation, capacity int, fn func(ctx context.Context, tx *sql.Tx) error) error
	Get(ctx context.Context, id string) (*Reservation, error)
	// UpdateStatusLogged persists the new status and its log row together.
	// fn runs in the same unit of work (tx is nil for non-SQL stores); a
	// non-nil error from fn aborts the update.
	UpdateStatusLogged(ctx context.Context, res *Reservation, log *StatusLog, fn func(ctx context.Context, tx *sql.Tx) error) error
	List(ctx context.Context, q ListQuery) ([]*Reservation, error)
	StatusLogs(ctx context.Context, reservationID string) ([]*StatusLog, error)

	// Sweep feeds: requested rows created before cutoff, and confirmed
	// rows whose start passed cutoff without check-in.
	ListStaleRequested(ctx context.Context, cutoff time.Time, limit int) ([]*Reservation, error)
	ListOverdueConfirmed(ctx context.Context, cutoff time.Time, limit int) ([]*Reservation, error)
}

// ErrSlotConflict is returned by stores when capacity is exhausted.
var ErrSlotConflict = errors.New("reservation: slot conflict")

// dayBucket is the serialization unit for slot admission.
func dayBucket(shopID string, at time.Time) string {
	return shopID + "|" + at.UTC().Format("2006-01-02")
}

// lockKey hashes the day bucket for pg_advisory_xact_lock.
func lockKey(shopID string, at time.Time) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(dayBucket(shopID, at)))
	return int64(h.Sum64())
}

