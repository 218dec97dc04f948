package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/idgen"
	"github.com/modubeauty/modu/internal/logging"
	"github.com/modubeauty/modu/internal/metrics"
	"github.com/modubeauty/modu/internal/points"
	"github.com/modubeauty/modu/internal/shop"
	"github.com/modubeauty/modu/internal/validation"
)

// Auditor records reservation mutations.
type Auditor interface {
	Audit(ctx context.Context, actorID, action, resourceType, resourceID string, before, after any, ip string)
}

// Publisher fans reservation events out to shop stream subscribers.
// Implemented by the realtime hub; nil disables publishing.
type Publisher interface {
	Publish(shopID string, event Event)
}

// Notifier enqueues user notifications.
type Notifier interface {
	Enqueue(ctx context.Context, userID, templateID, correlationID string, params map[string]string) error
}

// Event is what subscribers of a shop stream receive.
type Event struct {
	Type        string       `json:"type"` // reservation.created | reservation.transitioned
	Reservation *Reservation `json:"reservation"`
	From        Status       `json:"from,omitempty"`
	At          time.Time    `json:"at"`
}

// Config bounds slot admission and the auto-progress sweep.
type Config struct {
	SlotGranularity time.Duration // requested datetimes truncate to this unit
	ExpireAfter     time.Duration // requested older than this expires
	NoShowGrace     time.Duration // confirmed past start+grace becomes no_show
}

// DefaultConfig matches the service's environment defaults.
func DefaultConfig() Config {
	return Config{SlotGranularity: 30 * time.Minute, ExpireAfter: 24 * time.Hour, NoShowGrace: 30 * time.Minute}
}

// Service implements the reservation lifecycle.
type Service struct {
	store     Store
	shops     *shop.Manager
	ledger    *points.Ledger
	txLedger  func(tx *sql.Tx) *points.Ledger
	auditor   Auditor
	publisher Publisher
	notifier  Notifier
	cfg       Config
	now       func() time.Time
}

// NewService creates the reservation service.
func NewService(store Store, shops *shop.Manager, ledger *points.Ledger, cfg Config) *Service {
	if cfg.SlotGranularity <= 0 {
		cfg.SlotGranularity = DefaultConfig().SlotGranularity
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = DefaultConfig().ExpireAfter
	}
	if cfg.NoShowGrace <= 0 {
		cfg.NoShowGrace = DefaultConfig().NoShowGrace
	}
	return &Service{store: store, shops: shops, ledger: ledger, cfg: cfg, now: time.Now}
}

// WithAuditor attaches the audit recorder.
func (s *Service) WithAuditor(a Auditor) *Service {
	s.auditor = a
	return s
}

// WithPublisher attaches the shop stream hub.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// WithNotifier attaches the notification outbox.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithTxLedger supplies a transaction-bound ledger factory so point debits
// land in the same transaction as the reservation insert. Without it the
// plain ledger is used.
func (s *Service) WithTxLedger(f func(tx *sql.Tx) *points.Ledger) *Service {
	s.txLedger = f
	return s
}

// WithStore returns a copy bound to st. The payment orchestrator uses it to
// run transitions on transaction-bound stores.
func (s *Service) WithStore(st Store) *Service {
	cp := *s
	cp.store = st
	return &cp
}

func (s *Service) ledgerFor(tx *sql.Tx) *points.Ledger {
	if tx != nil && s.txLedger != nil {
		return s.txLedger(tx)
	}
	return s.ledger
}

// CreateInput carries the fields for a new booking.
type CreateInput struct {
	ShopID        string
	CustomerID    string
	ServiceIDs    []string
	Datetime      time.Time
	PointsToApply int64
	Memo          string
	ActorID       string
	IP            string
}

// Create books a slot. Admission is serialized per (shop, day): overlap
// counting and the insert happen under the same lock, so two concurrent
// requests cannot both squeeze into the last capacity slot.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Reservation, error) {
	if in.CustomerID == "" {
		return nil, errs.E(errs.KindValidation, "customerId is required")
	}
	if len(in.ServiceIDs) == 0 {
		return nil, errs.E(errs.KindValidation, "at least one service is required")
	}
	now := s.now().UTC()
	in.Datetime = validation.RoundToGranularity(in.Datetime.UTC(), s.cfg.SlotGranularity)
	if !in.Datetime.After(now) {
		return nil, errs.E(errs.KindValidation, "datetime must be in the future")
	}

	sh, err := s.shops.Get(ctx, in.ShopID)
	if err != nil {
		return nil, err
	}
	if !sh.Bookable() {
		return nil, errs.E(errs.KindConflictState, "shop_unavailable")
	}

	services, err := s.shops.Store().GetServices(ctx, in.ServiceIDs)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	byID := make(map[string]*shop.Service, len(services))
	for _, svc := range services {
		byID[svc.ID] = svc
	}
	var total int64
	var duration int
	for _, id := range in.ServiceIDs {
		svc, ok := byID[id]
		if !ok || svc.ShopID != in.ShopID || !svc.Available {
			return nil, errs.E(errs.KindValidation, "invalid_services").
				WithDetails(map[string]any{"serviceId": id})
		}
		total += svc.PriceMin
		duration += svc.DurationMinutes
	}
	if in.PointsToApply < 0 || in.PointsToApply > total {
		return nil, errs.E(errs.KindValidation, "pointsToApply must be within [0, totalAmount]")
	}

	res := &Reservation{
		ID:              idgen.WithPrefix("rsv_"),
		ShopID:          in.ShopID,
		CustomerID:      in.CustomerID,
		ServiceIDs:      in.ServiceIDs,
		Datetime:        in.Datetime.UTC(),
		EndTime:         in.Datetime.UTC().Add(time.Duration(duration) * time.Minute),
		DurationMinutes: duration,
		TotalAmount:     total,
		PointsUsed:      in.PointsToApply,
		Status:          StatusRequested,
		Memo:            in.Memo,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.store.CreateLocked(ctx, res, sh.Capacity, func(ctx context.Context, tx *sql.Tx) error {
		if in.PointsToApply == 0 {
			return nil
		}
		_, err := s.ledgerFor(tx).Debit(ctx, in.CustomerID, in.PointsToApply, points.TypeSpent, points.Opts{
			Description: "reservation " + res.ID,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			metrics.SlotConflictsTotal.Inc()
			return nil, errs.Wrap(errs.KindConflictSlot, "slot_conflict", err)
		}
		return nil, err
	}
	metrics.ReservationsCreatedTotal.Inc()

	if s.auditor != nil {
		s.auditor.Audit(ctx, in.ActorID, "reservation.created", "reservation", res.ID,
			nil, map[string]any{"shopId": res.ShopID, "status": res.Status, "datetime": res.Datetime}, in.IP)
	}
	s.publish(Event{Type: "reservation.created", Reservation: res, At: now})
	return res, nil
}

// Get returns one reservation.
func (s *Service) Get(ctx context.Context, id string) (*Reservation, error) {
	res, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.Wrap(errs.KindNotFound, "reservation not found", err)
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// List returns a shop's reservations.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*Reservation, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 50
	}
	return s.store.List(ctx, q)
}

// StatusLogs returns the transition history of a reservation.
func (s *Service) StatusLogs(ctx context.Context, reservationID string) ([]*StatusLog, error) {
	return s.store.StatusLogs(ctx, reservationID)
}

// Transition moves a reservation to a new state per the lifecycle table.
// Cancellation states return the customer's used points.
func (s *Service) Transition(ctx context.Context, id string, to Status, actorID, reason string) (*Reservation, error) {
	if !to.Valid() || to == StatusRequested {
		return nil, errs.E(errs.KindValidation, "unknown target status")
	}
	res, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(res.Status, to) {
		return nil, errs.E(errs.KindConflictState, "invalid_transition").
			WithDetails(map[string]any{"from": res.Status, "to": to})
	}

	from := res.Status
	now := s.now().UTC()
	res.Status = to
	res.UpdatedAt = now
	log := &StatusLog{
		ID:            idgen.WithPrefix("rsl_"),
		ReservationID: res.ID,
		From:          from,
		To:            to,
		Actor:         actorID,
		Reason:        reason,
		At:            now,
	}
	// The point refund joins the status update: either both land or the
	// transition fails and the caller retries.
	err = s.store.UpdateStatusLogged(ctx, res, log, func(ctx context.Context, tx *sql.Tx) error {
		if !to.IsCancellation() || res.PointsUsed == 0 {
			return nil
		}
		_, err := s.ledgerFor(tx).Credit(ctx, res.CustomerID, res.PointsUsed, points.TypeRefunded, points.Opts{
			Description: "reservation " + res.ID + " " + string(to),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update reservation: %w", err)
	}
	metrics.ReservationTransitionsTotal.WithLabelValues(string(to)).Inc()
	if s.auditor != nil {
		s.auditor.Audit(ctx, actorID, "reservation.transitioned", "reservation", res.ID,
			map[string]any{"status": from}, map[string]any{"status": to, "reason": reason}, "")
	}
	s.publish(Event{Type: "reservation.transitioned", Reservation: res, From: from, At: now})
	s.notifyTransition(ctx, res, to)
	return res, nil
}

func (s *Service) publish(e Event) {
	if s.publisher != nil {
		s.publisher.Publish(e.Reservation.ShopID, e)
	}
}

// notifyTransition tells the customer about shop- or system-driven moves.
func (s *Service) notifyTransition(ctx context.Context, res *Reservation, to Status) {
	if s.notifier == nil {
		return
	}
	var template string
	switch to {
	case StatusConfirmed:
		template = "reservation_confirmed"
	case StatusCancelledByShop:
		template = "reservation_cancelled_by_shop"
	case StatusExpired:
		template = "reservation_expired"
	default:
		return
	}
	params := map[string]string{"datetime": res.Datetime.Format(time.RFC3339)}
	if err := s.notifier.Enqueue(ctx, res.CustomerID, template, res.ID, params); err != nil {
		logging.L(ctx).Warn("enqueue reservation notification", "error", err)
	}
}

// ListStuck returns requested reservations older than olderThan. The
// auto-progress sweep should have expired these; admins use the listing
// to spot sweeps that fell behind.
func (s *Service) ListStuck(ctx context.Context, olderThan time.Duration, limit int) ([]*Reservation, error) {
	if olderThan <= 0 {
		olderThan = s.cfg.ExpireAfter
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.store.ListStaleRequested(ctx, s.now().UTC().Add(-olderThan), limit)
}

// AutoProgress expires stale requests and flags no-shows. Timer-driven.
func (s *Service) AutoProgress(ctx context.Context) (int, error) {
	now := s.now().UTC()
	moved := 0

	stale, err := s.store.ListStaleRequested(ctx, now.Add(-s.cfg.ExpireAfter), 100)
	if err != nil {
		return 0, fmt.Errorf("list stale requested: %w", err)
	}
	for _, res := range stale {
		if _, err := s.Transition(ctx, res.ID, StatusExpired, "system", "auto_expired"); err != nil {
			logging.L(ctx).Warn("auto-expire reservation", "reservationId", res.ID, "error", err)
			continue
		}
		moved++
	}

	overdue, err := s.store.ListOverdueConfirmed(ctx, now.Add(-s.cfg.NoShowGrace), 100)
	if err != nil {
		return moved, fmt.Errorf("list overdue confirmed: %w", err)
	}
	for _, res := range overdue {
		if _, err := s.Transition(ctx, res.ID, StatusNoShow, "system", "auto_no_show"); err != nil {
			logging.L(ctx).Warn("auto no-show reservation", "reservationId", res.ID, "error", err)
			continue
		}
		moved++
	}
	return moved, nil
}
