package referral

import (
	"context"
	"database/sql"
)

// querier is satisfied by *sql.DB and *sql.Tx so the same store code can
// run standalone or inside a caller-owned transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists commission rows in PostgreSQL.
type PostgresStore struct {
	q querier
}

// NewPostgresStore creates a PostgreSQL-backed referral store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{q: db}
}

// WithTx returns a store bound to tx. Used by the payment orchestrator so
// attribution lands in the webhook transaction.
func (p *PostgresStore) WithTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{q: tx}
}

func (p *PostgresStore) Create(ctx context.Context, r *Referral) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO referrals (id, referrer_user_id, referred_user_id, payment_id, commission, rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.ReferrerUserID, r.ReferredUserID, r.PaymentID, r.Commission, r.Rate, r.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetByPayment(ctx context.Context, paymentID string) (*Referral, error) {
	r := &Referral{}
	err := p.q.QueryRowContext(ctx, `
		SELECT id, referrer_user_id, referred_user_id, payment_id, commission, rate, created_at
		FROM referrals WHERE payment_id = $1`, paymentID,
	).Scan(&r.ID, &r.ReferrerUserID, &r.ReferredUserID, &r.PaymentID, &r.Commission, &r.Rate, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (p *PostgresStore) CountByReferrer(ctx context.Context, referrerUserID string) (int, error) {
	var n int
	err := p.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT referred_user_id) FROM referrals WHERE referrer_user_id = $1`,
		referrerUserID,
	).Scan(&n)
	return n, err
}

func (p *PostgresStore) TotalCommission(ctx context.Context, referrerUserID string) (int64, error) {
	var sum int64
	err := p.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(commission), 0) FROM referrals WHERE referrer_user_id = $1`,
		referrerUserID,
	).Scan(&sum)
	return sum, err
}

func (p *PostgresStore) ListByReferrer(ctx context.Context, referrerUserID string, limit int) ([]*Referral, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := p.q.QueryContext(ctx, `
		SELECT id, referrer_user_id, referred_user_id, payment_id, commission, rate, created_at
		FROM referrals WHERE referrer_user_id = $1
		ORDER BY created_at DESC LIMIT $2`, referrerUserID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Referral
	for rows.Next() {
		r := &Referral{}
		if err := rows.Scan(&r.ID, &r.ReferrerUserID, &r.ReferredUserID, &r.PaymentID,
			&r.Commission, &r.Rate, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
