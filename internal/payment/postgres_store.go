package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/modubeauty/modu/internal/dbsession"
)

// querier is satisfied by *sql.DB and *sql.Tx so the same store code runs
// standalone or bound to the webhook transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists payments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	q  querier
}

// NewPostgresStore creates a PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

// WithTx returns a store bound to tx.
func (p *PostgresStore) WithTx(tx *sql.Tx) Store {
	return &PostgresStore{db: p.db, q: tx}
}

// InTx runs fn in one transaction.
func (p *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := dbsession.Apply(ctx, tx); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

const paymentColumns = `id, reservation_id, shop_id, user_id, amount, points_used, method,
	       status, correlation_id, gateway_tx_id, paid_at, refund_of, dispute_deadline,
	       failure_reason, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, pay *Payment) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO payments (
			id, reservation_id, shop_id, user_id, amount, points_used, method,
			status, correlation_id, gateway_tx_id, paid_at, refund_of,
			dispute_deadline, failure_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		pay.ID, pay.ReservationID, pay.ShopID, pay.UserID, pay.Amount, pay.PointsUsed,
		pay.Method, string(pay.Status), pay.CorrelationID, nullString(pay.GatewayTxID),
		nullTime(pay.PaidAt), nullString(pay.RefundOf), nullTime(pay.DisputeDeadline),
		nullString(pay.FailureReason), pay.CreatedAt, pay.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	row := p.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

func (p *PostgresStore) GetByCorrelation(ctx context.Context, correlationID string) (*Payment, error) {
	row := p.q.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE correlation_id = $1`, correlationID)
	return scanPayment(row)
}

func (p *PostgresStore) Update(ctx context.Context, pay *Payment) error {
	result, err := p.q.ExecContext(ctx, `
		UPDATE payments SET
			status = $1, gateway_tx_id = $2, paid_at = $3, dispute_deadline = $4,
			failure_reason = $5, updated_at = $6
		WHERE id = $7`,
		string(pay.Status), nullString(pay.GatewayTxID), nullTime(pay.PaidAt),
		nullTime(pay.DisputeDeadline), nullString(pay.FailureReason), pay.UpdatedAt, pay.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Payment, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (p *PostgresStore) ListSettledByShop(ctx context.Context, shopID string, from, to time.Time) ([]*Payment, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE shop_id = $1
		  AND status IN ('deposit_paid', 'fully_paid', 'refunded', 'disputed')
		  AND paid_at BETWEEN $2 AND $3
		ORDER BY paid_at ASC`, shopID, from, to)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (p *PostgresStore) MarkEventProcessed(ctx context.Context, gatewayTxID, event string, at time.Time) (bool, error) {
	result, err := p.q.ExecContext(ctx, `
		INSERT INTO payment_webhook_events (gateway_tx_id, event, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (gateway_tx_id, event) DO NOTHING`,
		gatewayTxID, event, at,
	)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func collectPayments(rows *sql.Rows) ([]*Payment, error) {
	defer func() { _ = rows.Close() }()
	var out []*Payment
	for rows.Next() {
		pay, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pay)
	}
	return out, rows.Err()
}

type paymentScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(s paymentScanner) (*Payment, error) {
	pay := &Payment{}
	var status string
	var gatewayTxID, refundOf, failureReason sql.NullString
	var paidAt, disputeDeadline sql.NullTime
	err := s.Scan(
		&pay.ID, &pay.ReservationID, &pay.ShopID, &pay.UserID, &pay.Amount,
		&pay.PointsUsed, &pay.Method, &status, &pay.CorrelationID, &gatewayTxID,
		&paidAt, &refundOf, &disputeDeadline, &failureReason,
		&pay.CreatedAt, &pay.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pay.Status = Status(status)
	pay.GatewayTxID = gatewayTxID.String
	pay.RefundOf = refundOf.String
	pay.FailureReason = failureReason.String
	if paidAt.Valid {
		t := paidAt.Time
		pay.PaidAt = &t
	}
	if disputeDeadline.Valid {
		t := disputeDeadline.Time
		pay.DisputeDeadline = &t
	}
	return pay, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
var _ TxRunner = (*PostgresStore)(nil)
