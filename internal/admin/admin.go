// Package admin provides platform-operator endpoints: shop approval,
// bulk user moderation, manual point adjustments, and recovery surfaces
// for stuck reservations and payments.
package admin

import (
	"context"
	"time"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/points"
	"github.com/modubeauty/modu/internal/reservation"
	"github.com/modubeauty/modu/internal/user"
)

// maxBulkUsers bounds one bulk action so a fat-fingered request cannot
// suspend the whole user base in one call.
const maxBulkUsers = 100

// Auditor records admin actions. Same shape the shop and user services use.
type Auditor interface {
	Audit(ctx context.Context, actorID, action, resourceType, resourceID string, before, after any, ip string)
}

// Reconciler triggers the payment reconcile sweep on demand.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// Service wires the operator actions to the domain services.
type Service struct {
	users        *user.Service
	ledger       *points.Ledger
	reservations *reservation.Service
	reconciler   Reconciler
	auditor      Auditor
}

// NewService creates the admin service.
func NewService(users *user.Service, ledger *points.Ledger, reservations *reservation.Service) *Service {
	return &Service{users: users, ledger: ledger, reservations: reservations}
}

// WithReconciler attaches the payment reconcile trigger.
func (s *Service) WithReconciler(r Reconciler) *Service {
	s.reconciler = r
	return s
}

// WithAuditor attaches the audit recorder.
func (s *Service) WithAuditor(a Auditor) *Service {
	s.auditor = a
	return s
}

// BulkActionInput applies one moderation action to up to maxBulkUsers users.
type BulkActionInput struct {
	UserIDs []string
	Action  string // suspend | activate | delete
	Reason  string
}

// BulkResult reports the per-user outcome of a bulk action.
type BulkResult struct {
	UserID string `json:"userId"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

var bulkActions = map[string]user.Status{
	"suspend":  user.StatusSuspended,
	"activate": user.StatusActive,
	"delete":   user.StatusDeleted,
}

// BulkUserAction applies the action to each user independently; one bad ID
// does not abort the rest.
func (s *Service) BulkUserAction(ctx context.Context, actorID string, in BulkActionInput, ip string) ([]BulkResult, error) {
	status, ok := bulkActions[in.Action]
	if !ok {
		return nil, errs.E(errs.KindValidation, "action must be one of suspend, activate, delete")
	}
	if len(in.UserIDs) == 0 {
		return nil, errs.E(errs.KindValidation, "userIds is required")
	}
	if len(in.UserIDs) > maxBulkUsers {
		return nil, errs.Ef(errs.KindValidation, "at most %d users per bulk action", maxBulkUsers)
	}

	results := make([]BulkResult, 0, len(in.UserIDs))
	for _, id := range in.UserIDs {
		r := BulkResult{UserID: id, OK: true}
		if _, err := s.users.UpdateStatus(ctx, actorID, id, status, ip); err != nil {
			r.OK = false
			r.Error = errs.Message(err)
		}
		results = append(results, r)
	}
	return results, nil
}

// AdjustInput is a manual point correction. Positive amounts credit,
// negative amounts debit.
type AdjustInput struct {
	UserID      string
	Amount      int64
	Description string
	ExpiresAt   *time.Time
}

// AdjustPoints writes an adjusted ledger entry. Debits still respect
// the user's available balance; corrections cannot push a user negative.
func (s *Service) AdjustPoints(ctx context.Context, actorID string, in AdjustInput, ip string) (*points.Entry, error) {
	if in.UserID == "" {
		return nil, errs.E(errs.KindValidation, "userId is required")
	}
	if in.Amount == 0 {
		return nil, errs.E(errs.KindValidation, "amount must be non-zero")
	}
	if in.Description == "" {
		return nil, errs.E(errs.KindValidation, "description is required for manual adjustments")
	}
	if _, err := s.users.Get(ctx, in.UserID); err != nil {
		return nil, err
	}

	opts := points.Opts{Description: in.Description, ExpiresAt: in.ExpiresAt}
	var entry *points.Entry
	var err error
	if in.Amount > 0 {
		entry, err = s.ledger.Credit(ctx, in.UserID, in.Amount, points.TypeAdjusted, opts)
	} else {
		entry, err = s.ledger.Debit(ctx, in.UserID, -in.Amount, points.TypeAdjusted, opts)
	}
	if err != nil {
		return nil, err
	}
	if s.auditor != nil {
		s.auditor.Audit(ctx, actorID, "points.admin_adjusted", "user", in.UserID,
			nil, map[string]any{"amount": in.Amount, "description": in.Description}, ip)
	}
	return entry, nil
}

// StuckReservations lists requested reservations the auto-progress sweep
// should already have expired.
func (s *Service) StuckReservations(ctx context.Context, olderThan time.Duration, limit int) ([]*reservation.Reservation, error) {
	return s.reservations.ListStuck(ctx, olderThan, limit)
}

// ReconcilePayments runs the payment reconcile sweep once and reports how
// many payments moved.
func (s *Service) ReconcilePayments(ctx context.Context, actorID, ip string) (int, error) {
	if s.reconciler == nil {
		return 0, errs.E(errs.KindInternal, "payment reconciler not configured")
	}
	moved, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		return 0, err
	}
	if s.auditor != nil {
		s.auditor.Audit(ctx, actorID, "payments.reconcile_triggered", "payment", "",
			nil, map[string]any{"moved": moved}, ip)
	}
	return moved, nil
}
