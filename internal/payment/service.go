package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/idgen"
	"github.com/modubeauty/modu/internal/logging"
	"github.com/modubeauty/modu/internal/metrics"
	"github.com/modubeauty/modu/internal/points"
	"github.com/modubeauty/modu/internal/referral"
	"github.com/modubeauty/modu/internal/reservation"
)

// disputeEvidenceWindow is how long the shop has to submit evidence after
// the gateway reports a dispute.
const disputeEvidenceWindow = 7 * 24 * time.Hour

// defaultReconcileAfter is how long a payment may sit pending before the
// sweep asks the gateway what happened.
const defaultReconcileAfter = 30 * time.Minute

// errDuplicateEvent marks a webhook delivery already processed. Internal:
// HandleEvent reports it as duplicate=true.
var errDuplicateEvent = errors.New("payment: duplicate webhook event")

// Notifier enqueues user notifications. The notification outbox implements
// it; nil disables notifications.
type Notifier interface {
	Enqueue(ctx context.Context, userID, templateID, correlationID string, params map[string]string) error
}

// txNotifier is the optional transactional variant. When the outbox exposes
// it, approval notifications are inserted in the settlement transaction.
type txNotifier interface {
	EnqueueTx(ctx context.Context, tx *sql.Tx, userID, templateID, correlationID string, params map[string]string) error
}

// Orchestrator drives the payment lifecycle.
type Orchestrator struct {
	store          Store
	reservations   *reservation.Service
	ledger         *points.Ledger
	txLedger       func(tx *sql.Tx) *points.Ledger
	referrals      *referral.Service
	txReferrals    func(tx *sql.Tx) *referral.Service
	txReservations func(tx *sql.Tx) *reservation.Service
	notifier       Notifier
	gateway        Gateway
	earnRate       float64
	reconcile      time.Duration
	now            func() time.Time
}

// NewOrchestrator creates the payment orchestrator.
func NewOrchestrator(store Store, reservations *reservation.Service, ledger *points.Ledger, gateway Gateway) *Orchestrator {
	return &Orchestrator{
		store:        store,
		reservations: reservations,
		ledger:       ledger,
		gateway:      gateway,
		reconcile:    defaultReconcileAfter,
		now:          time.Now,
	}
}

// WithReferrals attaches the referral attribution service.
func (o *Orchestrator) WithReferrals(r *referral.Service) *Orchestrator {
	o.referrals = r
	return o
}

// WithNotifier attaches the notification outbox.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// WithTxLedger supplies a transaction-bound ledger factory so hold commits
// and reversals land in the webhook transaction.
func (o *Orchestrator) WithTxLedger(f func(tx *sql.Tx) *points.Ledger) *Orchestrator {
	o.txLedger = f
	return o
}

// WithTxReferrals supplies a transaction-bound referral service factory so
// commission attribution commits or rolls back with the settlement.
func (o *Orchestrator) WithTxReferrals(f func(tx *sql.Tx) *referral.Service) *Orchestrator {
	o.txReferrals = f
	return o
}

// WithTxReservations supplies a transaction-bound reservation service
// factory so confirmation and refund cancellation join the settlement
// transaction.
func (o *Orchestrator) WithTxReservations(f func(tx *sql.Tx) *reservation.Service) *Orchestrator {
	o.txReservations = f
	return o
}

// WithEarnRate makes approved payments earn the customer back a fraction of
// the cash amount as earned_purchase points. Zero disables the earn.
func (o *Orchestrator) WithEarnRate(rate float64) *Orchestrator {
	if rate > 0 && rate <= 1 {
		o.earnRate = rate
	}
	return o
}

// WithReconcileAfter overrides the pending-payment deadline for the sweep.
func (o *Orchestrator) WithReconcileAfter(d time.Duration) *Orchestrator {
	if d > 0 {
		o.reconcile = d
	}
	return o
}

func (o *Orchestrator) ledgerFor(tx *sql.Tx) *points.Ledger {
	if tx != nil && o.txLedger != nil {
		return o.txLedger(tx)
	}
	return o.ledger
}

func (o *Orchestrator) storeFor(tx *sql.Tx) Store {
	if tx != nil {
		if r, ok := o.store.(TxRunner); ok {
			return r.WithTx(tx)
		}
	}
	return o.store
}

func (o *Orchestrator) referralsFor(tx *sql.Tx) *referral.Service {
	if tx != nil && o.txReferrals != nil {
		return o.txReferrals(tx)
	}
	return o.referrals
}

func (o *Orchestrator) reservationsFor(tx *sql.Tx) *reservation.Service {
	if tx != nil && o.txReservations != nil {
		return o.txReservations(tx)
	}
	return o.reservations
}

// inTx runs fn in one transaction when the store supports it, and directly
// (tx == nil) when it does not.
func (o *Orchestrator) inTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if r, ok := o.store.(TxRunner); ok {
		return r.InTx(ctx, fn)
	}
	return fn(ctx, nil)
}

// eventUnmarker is implemented by non-transactional stores so a failed
// delivery can clear its event marker and stay retryable on redelivery.
// SQL stores never need it: the marker rolls back with the transaction.
type eventUnmarker interface {
	UnmarkEvent(ctx context.Context, gatewayTxID, event string) error
}

// InitiateInput carries the fields for a new charge attempt.
type InitiateInput struct {
	Method        string
	PointsToApply int64
	ActorID       string
}

// InitiateResult is what the client needs to open the gateway checkout.
type InitiateResult struct {
	PaymentID        string            `json:"paymentId"`
	CorrelationID    string            `json:"correlationId"`
	ClientParameters map[string]string `json:"clientParameters"`
}

// Initiate creates a pending payment for a reservation. Points are reserved
// through a ledger hold, not a debit; the hold commits when the gateway
// approves and releases when it fails. The correlation ID is the sole
// idempotency key toward the gateway.
func (o *Orchestrator) Initiate(ctx context.Context, reservationID string, in InitiateInput) (*InitiateResult, error) {
	if in.Method == "" {
		return nil, errs.E(errs.KindValidation, "method is required")
	}
	if in.PointsToApply < 0 {
		return nil, errs.E(errs.KindValidation, "pointsToApply must not be negative")
	}

	res, err := o.reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != reservation.StatusRequested && res.Status != reservation.StatusConfirmed {
		return nil, errs.E(errs.KindConflictState, "reservation is not payable").
			WithDetails(map[string]any{"status": res.Status})
	}
	if in.ActorID != "" && in.ActorID != res.CustomerID {
		return nil, errs.E(errs.KindForbidden, "only the reservation customer may pay")
	}

	// Points already applied at booking reduce what's left to charge.
	chargeable := res.TotalAmount - res.PointsUsed
	if in.PointsToApply > chargeable {
		return nil, errs.E(errs.KindValidation, "pointsToApply exceeds the remaining amount").
			WithDetails(map[string]any{"remaining": chargeable})
	}
	amount := chargeable - in.PointsToApply
	if amount <= 0 {
		return nil, errs.E(errs.KindValidation, "nothing to charge")
	}

	correlationID := uuid.NewString()
	if in.PointsToApply > 0 {
		if _, err := o.ledger.Hold(ctx, res.CustomerID, in.PointsToApply, correlationID); err != nil {
			return nil, err
		}
	}

	now := o.now().UTC()
	p := &Payment{
		ID:            idgen.WithPrefix("pay_"),
		ReservationID: res.ID,
		ShopID:        res.ShopID,
		UserID:        res.CustomerID,
		Amount:        amount,
		PointsUsed:    in.PointsToApply,
		Method:        in.Method,
		Status:        StatusPending,
		CorrelationID: correlationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.store.Create(ctx, p); err != nil {
		// The hold stays tied to the correlation ID; the reconcile sweep
		// cannot see it, so release eagerly.
		if in.PointsToApply > 0 {
			if rerr := o.ledger.ReleaseHold(ctx, correlationID); rerr != nil {
				logging.L(ctx).Error("release hold after create failure", "correlationId", correlationID, "error", rerr)
			}
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}
	metrics.PaymentsTotal.WithLabelValues(string(StatusPending)).Inc()

	return &InitiateResult{
		PaymentID:     p.ID,
		CorrelationID: correlationID,
		ClientParameters: map[string]string{
			"correlationId": correlationID,
			"amount":        strconv.FormatInt(amount, 10),
			"method":        in.Method,
		},
	}, nil
}

// Get returns one payment.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Payment, error) {
	p, err := o.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.Wrap(errs.KindNotFound, "payment not found", err)
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// HandleEvent applies one verified gateway webhook. Idempotent on
// (gatewayTxId, event): redelivery reports duplicate=true and changes
// nothing. State changes, the event marker, point hold operations, referral
// attribution, and reservation moves share one transaction; only the
// customer notification follows the commit.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev WebhookEvent) (duplicate bool, err error) {
	if !validEvent(ev.Event) {
		return false, errs.Ef(errs.KindValidation, "unknown event %q", ev.Event)
	}
	if ev.GatewayTxID == "" || ev.CorrelationID == "" {
		return false, errs.E(errs.KindValidation, "gatewayTxId and correlationId are required")
	}

	var approved *Payment
	err = o.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		st := o.storeFor(tx)
		first, err := st.MarkEventProcessed(ctx, ev.GatewayTxID, ev.Event, o.now().UTC())
		if err != nil {
			return fmt.Errorf("mark event: %w", err)
		}
		if !first {
			return errDuplicateEvent
		}

		p, err := st.GetByCorrelation(ctx, ev.CorrelationID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return errs.Wrap(errs.KindNotFound, "no payment for correlation id", err)
			}
			return fmt.Errorf("lookup payment: %w", err)
		}

		switch ev.Event {
		case EventApproved:
			if err := o.applyApproval(ctx, st, tx, p, ev); err != nil {
				return err
			}
			approved = p
		case EventFailed, EventCancelled:
			return o.applyFailure(ctx, st, tx, p, ev)
		case EventRefund:
			return o.applyRefund(ctx, st, tx, p, ev)
		case EventDispute:
			return o.applyDispute(ctx, st, p, ev)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicateEvent) {
			return true, nil
		}
		// Without a real transaction the marker survived the failure and
		// would short-circuit the retry; clear it so redelivery can run.
		if _, isTx := o.store.(TxRunner); !isTx {
			if u, ok := o.store.(eventUnmarker); ok {
				if uerr := u.UnmarkEvent(ctx, ev.GatewayTxID, ev.Event); uerr != nil {
					logging.L(ctx).Error("unmark failed event", "gatewayTxId", ev.GatewayTxID, "error", uerr)
				}
			}
		}
		return false, err
	}

	if approved != nil {
		o.notifyApproval(ctx, approved)
	}
	return false, nil
}

func (o *Orchestrator) applyApproval(ctx context.Context, st Store, tx *sql.Tx, p *Payment, ev WebhookEvent) error {
	if p.Status.Settled() {
		// Gateway re-sent approval under a new tx id. The follow-ups are
		// idempotent; re-running them repairs a non-transactional store
		// that settled but failed partway through them.
		return o.settleFollowups(ctx, tx, p)
	}
	if p.Status != StatusPending {
		return errs.E(errs.KindConflictState, "payment is not pending").
			WithDetails(map[string]any{"status": p.Status})
	}

	paidAt := ev.OccurredAt
	if paidAt.IsZero() {
		paidAt = o.now().UTC()
	}
	status := StatusDepositPaid
	if ev.Amount >= p.Amount {
		status = StatusFullyPaid
	}
	p.Status = status
	p.GatewayTxID = ev.GatewayTxID
	p.PaidAt = &paidAt
	p.UpdatedAt = o.now().UTC()
	if err := st.Update(ctx, p); err != nil {
		return fmt.Errorf("settle payment: %w", err)
	}
	if p.PointsUsed > 0 {
		if _, err := o.ledgerFor(tx).CommitHold(ctx, p.CorrelationID, p.ID); err != nil {
			return fmt.Errorf("commit point hold: %w", err)
		}
	}
	if o.earnRate > 0 {
		base := ev.Amount
		if base <= 0 || base > p.Amount {
			base = p.Amount
		}
		earn := int64(math.Floor(float64(base) * o.earnRate))
		if earn > 0 {
			if _, err := o.ledgerFor(tx).Credit(ctx, p.UserID, earn, points.TypeEarnedPurchase, points.Opts{
				PaymentID: p.ID,
			}); err != nil {
				return fmt.Errorf("credit purchase points: %w", err)
			}
		}
	}
	// When the outbox can join the transaction the notification commits or
	// rolls back with the settlement. The outbox dedupes on (user,
	// template, correlation), so the post-commit enqueue is a no-op then.
	if tn, ok := o.notifier.(txNotifier); ok && tx != nil {
		params := map[string]string{"amount": strconv.FormatInt(p.Amount, 10)}
		if err := tn.EnqueueTx(ctx, tx, p.UserID, "payment_approved", p.ID, params); err != nil {
			return fmt.Errorf("enqueue approval notification: %w", err)
		}
	}
	metrics.PaymentsTotal.WithLabelValues(string(status)).Inc()
	return o.settleFollowups(ctx, tx, p)
}

// settleFollowups pays referral commission and confirms the reservation.
// Runs inside the settlement transaction so a failure rolls the whole
// delivery back and the gateway's redelivery retries it. Both steps are
// idempotent on re-run.
func (o *Orchestrator) settleFollowups(ctx context.Context, tx *sql.Tx, p *Payment) error {
	if o.referrals != nil {
		paidAt := o.now().UTC()
		if p.PaidAt != nil {
			paidAt = *p.PaidAt
		}
		if _, err := o.referralsFor(tx).Attribute(ctx, referral.Payment{
			PaymentID:   p.ID,
			PayerUserID: p.UserID,
			Amount:      p.Amount + p.PointsUsed,
			PointsUsed:  p.PointsUsed,
			PaidAt:      paidAt,
		}); err != nil {
			return fmt.Errorf("attribute referral: %w", err)
		}
	}

	reservations := o.reservationsFor(tx)
	res, err := reservations.Get(ctx, p.ReservationID)
	if err != nil {
		return fmt.Errorf("load reservation for approval: %w", err)
	}
	if res.Status == reservation.StatusRequested {
		if _, err := reservations.Transition(ctx, res.ID, reservation.StatusConfirmed, "system", "payment_approved"); err != nil {
			return fmt.Errorf("confirm reservation: %w", err)
		}
	}
	return nil
}

// notifyApproval is the post-commit fallback for stores without an outbox
// that can join the transaction. The outbox dedupes, so double enqueue is
// harmless.
func (o *Orchestrator) notifyApproval(ctx context.Context, p *Payment) {
	if o.notifier == nil {
		return
	}
	params := map[string]string{"amount": strconv.FormatInt(p.Amount, 10)}
	if err := o.notifier.Enqueue(ctx, p.UserID, "payment_approved", p.ID, params); err != nil {
		logging.L(ctx).Warn("enqueue payment notification", "paymentId", p.ID, "error", err)
	}
}

func (o *Orchestrator) applyFailure(ctx context.Context, st Store, tx *sql.Tx, p *Payment, ev WebhookEvent) error {
	target := StatusFailed
	if ev.Event == EventCancelled {
		target = StatusCancelled
	}
	if p.Status == target {
		return nil
	}
	if p.Status != StatusPending {
		return errs.E(errs.KindConflictState, "payment is not pending").
			WithDetails(map[string]any{"status": p.Status})
	}

	p.Status = target
	p.GatewayTxID = ev.GatewayTxID
	p.FailureReason = ev.Reason
	p.UpdatedAt = o.now().UTC()
	if err := st.Update(ctx, p); err != nil {
		return fmt.Errorf("fail payment: %w", err)
	}
	if p.PointsUsed > 0 {
		if err := o.ledgerFor(tx).ReleaseHold(ctx, p.CorrelationID); err != nil {
			return fmt.Errorf("release point hold: %w", err)
		}
	}
	metrics.PaymentsTotal.WithLabelValues(string(target)).Inc()
	return nil
}

func (o *Orchestrator) applyRefund(ctx context.Context, st Store, tx *sql.Tx, p *Payment, ev WebhookEvent) error {
	if p.Status == StatusRefunded {
		// Re-sent refund under a new tx id. The cancellation is idempotent;
		// re-running it repairs a non-transactional store that recorded the
		// refund but failed before the reservation moved.
		return o.cancelForRefund(ctx, tx, p, ev.Initiator)
	}
	if !p.Status.Settled() && p.Status != StatusDisputed {
		return errs.E(errs.KindConflictState, "only settled payments can be refunded").
			WithDetails(map[string]any{"status": p.Status})
	}

	now := o.now().UTC()
	refundedAt := ev.OccurredAt
	if refundedAt.IsZero() {
		refundedAt = now
	}
	amount := ev.Amount
	if amount <= 0 {
		amount = p.Amount
	}
	refund := &Payment{
		ID:            idgen.WithPrefix("pay_"),
		ReservationID: p.ReservationID,
		ShopID:        p.ShopID,
		UserID:        p.UserID,
		Amount:        amount,
		Method:        p.Method,
		Status:        StatusRefunded,
		CorrelationID: uuid.NewString(),
		GatewayTxID:   ev.GatewayTxID,
		PaidAt:        &refundedAt,
		RefundOf:      p.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := st.Create(ctx, refund); err != nil {
		return fmt.Errorf("record refund: %w", err)
	}

	p.Status = StatusRefunded
	p.UpdatedAt = now
	if err := st.Update(ctx, p); err != nil {
		return fmt.Errorf("mark payment refunded: %w", err)
	}
	// Every ledger row written under this payment (committed hold,
	// referral commission) gets an exact inverse.
	if _, err := o.ledgerFor(tx).ReverseByPayment(ctx, p.ID, points.TypeRefunded); err != nil {
		return fmt.Errorf("reverse ledger entries: %w", err)
	}
	metrics.PaymentsTotal.WithLabelValues(string(StatusRefunded)).Inc()
	return o.cancelForRefund(ctx, tx, p, ev.Initiator)
}

// cancelForRefund cancels the reservation if it is still active. The
// initiator field decides which cancellation state it lands in. Runs in the
// refund transaction so the money and the slot move together.
func (o *Orchestrator) cancelForRefund(ctx context.Context, tx *sql.Tx, p *Payment, initiator string) error {
	reservations := o.reservationsFor(tx)
	res, err := reservations.Get(ctx, p.ReservationID)
	if err != nil {
		return fmt.Errorf("load reservation for refund: %w", err)
	}
	if res.Status.IsTerminal() {
		return nil
	}
	target := reservation.StatusCancelledByUser
	if initiator == "shop" {
		target = reservation.StatusCancelledByShop
	}
	if !reservation.CanTransition(res.Status, target) {
		return nil
	}
	if _, err := reservations.Transition(ctx, res.ID, target, "system", "payment_refunded"); err != nil {
		return fmt.Errorf("cancel reservation for refund: %w", err)
	}
	return nil
}

func (o *Orchestrator) applyDispute(ctx context.Context, st Store, p *Payment, ev WebhookEvent) error {
	if p.Status == StatusDisputed {
		return nil
	}
	if !p.Status.Settled() {
		return errs.E(errs.KindConflictState, "only settled payments can be disputed").
			WithDetails(map[string]any{"status": p.Status})
	}

	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = o.now().UTC()
	}
	deadline := occurred.Add(disputeEvidenceWindow)
	p.Status = StatusDisputed
	p.DisputeDeadline = &deadline
	p.UpdatedAt = o.now().UTC()
	if err := st.Update(ctx, p); err != nil {
		return fmt.Errorf("mark payment disputed: %w", err)
	}
	metrics.PaymentsTotal.WithLabelValues(string(StatusDisputed)).Inc()
	return nil
}

// Reconcile settles or fails pending payments the gateway never called back
// about. Timer-driven; also reachable through the admin API.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	cutoff := o.now().UTC().Add(-o.reconcile)
	pending, err := o.store.ListPendingBefore(ctx, cutoff, 100)
	if err != nil {
		return 0, fmt.Errorf("list pending payments: %w", err)
	}

	moved := 0
	for _, p := range pending {
		status, err := o.gateway.Lookup(ctx, p.CorrelationID)
		if err != nil {
			if errs.IsKind(err, errs.KindGatewayUnavailable) {
				return moved, err // circuit open, stop the sweep
			}
			logging.L(ctx).Warn("reconcile lookup", "paymentId", p.ID, "error", err)
			continue
		}

		var ev WebhookEvent
		switch status.Status {
		case "approved":
			ev = WebhookEvent{
				Event:         EventApproved,
				CorrelationID: p.CorrelationID,
				GatewayTxID:   status.GatewayTxID,
				Amount:        status.Amount,
				OccurredAt:    status.PaidAt,
			}
		case "failed", "cancelled":
			ev = WebhookEvent{
				Event:         status.Status,
				CorrelationID: p.CorrelationID,
				GatewayTxID:   status.GatewayTxID,
				Reason:        status.FailureReason,
			}
		default:
			continue // still pending at the gateway
		}
		if ev.GatewayTxID == "" {
			// The gateway settled without a tx id; key idempotency on the
			// correlation instead.
			ev.GatewayTxID = "reconcile:" + p.CorrelationID
		}

		if _, err := o.HandleEvent(ctx, ev); err != nil {
			logging.L(ctx).Warn("reconcile settle", "paymentId", p.ID, "error", err)
			continue
		}
		moved++
	}
	return moved, nil
}
