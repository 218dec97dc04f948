package identity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists verification records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed identity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, verification_id, user_id, status, min_age, carrier, title,
	       ci, di, name, birth_date, gender, operator, fail_reason,
	       verified_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, r *Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO identity_verifications (
			id, verification_id, user_id, status, min_age, carrier, title,
			ci, di, name, birth_date, gender, operator, fail_reason,
			verified_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		r.ID, r.VerificationID, r.UserID, string(r.Status),
		r.Restrictions.MinAge, nullString(r.Restrictions.Carrier), nullString(r.Restrictions.Title),
		nullString(r.CI), nullString(r.DI), nullString(r.Name), nullString(r.BirthDate),
		nullString(r.Gender), nullString(r.Operator), nullString(r.FailReason),
		nullTime(r.VerifiedAt), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM identity_verifications WHERE id = $1`, id)
	return scanRecord(row)
}

func (p *PostgresStore) GetByVerificationID(ctx context.Context, verificationID string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM identity_verifications WHERE verification_id = $1`, verificationID)
	return scanRecord(row)
}

func (p *PostgresStore) Update(ctx context.Context, r *Record) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE identity_verifications SET
			status = $1, ci = $2, di = $3, name = $4, birth_date = $5,
			gender = $6, operator = $7, fail_reason = $8, verified_at = $9,
			updated_at = $10
		WHERE id = $11`,
		string(r.Status), nullString(r.CI), nullString(r.DI), nullString(r.Name),
		nullString(r.BirthDate), nullString(r.Gender), nullString(r.Operator),
		nullString(r.FailReason), nullTime(r.VerifiedAt), r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
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

func (p *PostgresStore) ListVerifiedByCI(ctx context.Context, ci string) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM identity_verifications
		WHERE status = 'verified' AND ci = $1`, ci)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	r := &Record{}
	var status string
	var carrier, title, ci, di, name, birthDate, gender, operator, failReason sql.NullString
	var verifiedAt sql.NullTime
	err := s.Scan(
		&r.ID, &r.VerificationID, &r.UserID, &status,
		&r.Restrictions.MinAge, &carrier, &title,
		&ci, &di, &name, &birthDate, &gender, &operator, &failReason,
		&verifiedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.Restrictions.Carrier = carrier.String
	r.Restrictions.Title = title.String
	r.CI = ci.String
	r.DI = di.String
	r.Name = name.String
	r.BirthDate = birthDate.String
	r.Gender = gender.String
	r.Operator = operator.String
	r.FailReason = failReason.String
	if verifiedAt.Valid {
		t := verifiedAt.Time
		r.VerifiedAt = &t
	}
	return r, nil
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
