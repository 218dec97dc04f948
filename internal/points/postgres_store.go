package points

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// querier is satisfied by *sql.DB and *sql.Tx so the same store code can
// run standalone or inside a caller-owned transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists the point ledger in PostgreSQL.
type PostgresStore struct {
	q querier
}

// NewPostgresStore creates a PostgreSQL-backed point store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{q: db}
}

// WithTx returns a store bound to tx. Used by the payment orchestrator so
// hold commits land in the webhook transaction.
func (p *PostgresStore) WithTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{q: tx}
}

const entryColumns = `id, user_id, type, amount, payment_id, related_user_id,
	       description, expires_at, expired_by, reverses, created_at`

func (p *PostgresStore) AppendEntry(ctx context.Context, e *Entry) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO point_entries (
			id, user_id, type, amount, payment_id, related_user_id,
			description, expires_at, expired_by, reverses, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.UserID, string(e.Type), e.Amount,
		nullString(e.PaymentID), nullString(e.RelatedUserID), nullString(e.Description),
		nullTime(e.ExpiresAt), nullString(e.ExpiredBy), nullString(e.Reverses), e.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetEntry(ctx context.Context, id string) (*Entry, error) {
	row := p.q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM point_entries WHERE id = $1`, id)
	return scanEntry(row)
}

func (p *PostgresStore) EntriesByPayment(ctx context.Context, paymentID string) ([]*Entry, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM point_entries
		WHERE payment_id = $1 ORDER BY created_at ASC, id ASC`, paymentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectEntries(rows)
}

func (p *PostgresStore) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := p.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM point_entries WHERE user_id = $1`, userID,
	).Scan(&balance)
	return balance, err
}

func (p *PostgresStore) Summary(ctx context.Context, userID string, now time.Time) (*Summary, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	s := &Summary{}
	err := p.q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(amount) FILTER (WHERE amount > 0 AND type <> 'refunded'), 0),
			COALESCE(-SUM(amount) FILTER (WHERE amount < 0 AND type = 'spent'), 0),
			COALESCE(SUM(amount) FILTER (WHERE amount > 0 AND type <> 'refunded' AND created_at >= $2), 0)
		FROM point_entries WHERE user_id = $1`,
		userID, dayStart,
	).Scan(&s.Balance, &s.TotalEarned, &s.TotalSpent, &s.EarnedToday)
	if err != nil {
		return nil, err
	}
	held, err := p.ActiveHoldTotal(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.Available = s.Balance - held
	return s, nil
}

func (p *PostgresStore) History(ctx context.Context, q HistoryQuery) ([]*Entry, string, error) {
	conds := []string{"user_id = $1"}
	args := []any{q.UserID}
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !q.From.IsZero() {
		add("created_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("created_at <= $%d", q.To)
	}
	if q.Cursor != "" {
		add("(created_at, id) < (SELECT created_at, id FROM point_entries WHERE id = $%d)", q.Cursor)
	}
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit+1)

	rows, err := p.q.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM point_entries
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY created_at DESC, id DESC LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rows.Close() }()

	result, err := collectEntries(rows)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(result) > limit {
		result = result[:limit]
		next = result[len(result)-1].ID
	}
	return result, next, nil
}

func (p *PostgresStore) ExpiringEntries(ctx context.Context, now time.Time, limit int) ([]*Entry, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM point_entries e
		WHERE e.amount > 0
		  AND e.expires_at IS NOT NULL AND e.expires_at < $1
		  AND NOT EXISTS (SELECT 1 FROM point_entries x WHERE x.expired_by = e.id)
		ORDER BY e.expires_at ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectEntries(rows)
}

func (p *PostgresStore) FindReferralEntry(ctx context.Context, paymentID string, paidAt time.Time, userID string, window time.Duration) (*Entry, error) {
	row := p.q.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM point_entries
		WHERE user_id = $1 AND type = 'earned_referral' AND payment_id = $2
		LIMIT 1`, userID, paymentID)
	e, err := scanEntry(row)
	if err == nil {
		return e, nil
	}
	if err != ErrEntryNotFound {
		return nil, err
	}

	// Rows written before paymentId stamping: match by time proximity.
	row = p.q.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM point_entries
		WHERE user_id = $1 AND type = 'earned_referral' AND payment_id IS NULL
		  AND created_at BETWEEN $2 AND $3
		ORDER BY abs(extract(epoch FROM created_at - $4::timestamptz)) ASC
		LIMIT 1`, userID, paidAt.Add(-window), paidAt.Add(window), paidAt)
	return scanEntry(row)
}

func (p *PostgresStore) CreateHold(ctx context.Context, h *Hold) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO point_holds (id, user_id, amount, correlation_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, h.UserID, h.Amount, h.CorrelationID, string(h.Status), h.CreatedAt, h.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetHoldByCorrelation(ctx context.Context, correlationID string) (*Hold, error) {
	h := &Hold{}
	var status string
	err := p.q.QueryRowContext(ctx, `
		SELECT id, user_id, amount, correlation_id, status, created_at, updated_at
		FROM point_holds WHERE correlation_id = $1`, correlationID,
	).Scan(&h.ID, &h.UserID, &h.Amount, &h.CorrelationID, &status, &h.CreatedAt, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrHoldNotFound
	}
	if err != nil {
		return nil, err
	}
	h.Status = HoldStatus(status)
	return h, nil
}

func (p *PostgresStore) UpdateHold(ctx context.Context, h *Hold) error {
	result, err := p.q.ExecContext(ctx, `
		UPDATE point_holds SET status = $1, updated_at = $2 WHERE id = $3`,
		string(h.Status), h.UpdatedAt, h.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrHoldNotFound
	}
	return nil
}

func (p *PostgresStore) ActiveHoldTotal(ctx context.Context, userID string) (int64, error) {
	var held int64
	err := p.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM point_holds
		WHERE user_id = $1 AND status = 'active'`, userID,
	).Scan(&held)
	return held, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*Entry, error) {
	e := &Entry{}
	var typ string
	var paymentID, relatedUserID, description, expiredBy, reverses sql.NullString
	var expiresAt sql.NullTime
	err := s.Scan(
		&e.ID, &e.UserID, &typ, &e.Amount, &paymentID, &relatedUserID,
		&description, &expiresAt, &expiredBy, &reverses, &e.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Type = EntryType(typ)
	e.PaymentID = paymentID.String
	e.RelatedUserID = relatedUserID.String
	e.Description = description.String
	e.ExpiredBy = expiredBy.String
	e.Reverses = reverses.String
	if expiresAt.Valid {
		t := expiresAt.Time
		e.ExpiresAt = &t
	}
	return e, nil
}

func collectEntries(rows *sql.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
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
