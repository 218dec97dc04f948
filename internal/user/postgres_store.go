package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, name, phone, password_hash, provider, provider_user_id,
	       role, shop_id, status, referral_code, referred_by_code,
	       is_influencer, influencer_qualified_at, created_at, updated_at, deleted_at`

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, name, phone, password_hash, provider, provider_user_id,
			role, shop_id, status, referral_code, referred_by_code,
			is_influencer, influencer_qualified_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		u.ID, nullString(u.Email), u.Name, nullString(u.Phone),
		nullString(u.PasswordHash), nullString(u.Provider), nullString(u.ProviderUserID),
		string(u.Role), nullString(u.ShopID), string(u.Status),
		u.ReferralCode, nullString(u.ReferredByCode),
		u.IsInfluencer, nullTime(u.InfluencerQualifiedAt), u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "referral_code") {
				return ErrCodeTaken
			}
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanUser(row)
}

func (p *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email)
	return scanUser(row)
}

func (p *PostgresStore) GetBySocial(ctx context.Context, provider, providerUserID string) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE provider = $1 AND provider_user_id = $2 AND deleted_at IS NULL`,
		provider, providerUserID)
	return scanUser(row)
}

func (p *PostgresStore) GetByReferralCode(ctx context.Context, code string) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE referral_code = $1 AND deleted_at IS NULL`, code)
	return scanUser(row)
}

func (p *PostgresStore) Update(ctx context.Context, u *User) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE users SET
			email = $1, name = $2, phone = $3, password_hash = $4,
			role = $5, shop_id = $6, status = $7, referred_by_code = $8,
			is_influencer = $9, influencer_qualified_at = $10,
			updated_at = $11, deleted_at = $12
		WHERE id = $13`,
		nullString(u.Email), u.Name, nullString(u.Phone), nullString(u.PasswordHash),
		string(u.Role), nullString(u.ShopID), string(u.Status), nullString(u.ReferredByCode),
		u.IsInfluencer, nullTime(u.InfluencerQualifiedAt),
		u.UpdatedAt, nullTime(u.DeletedAt), u.ID,
	)
	if err != nil {
		return err
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

func (p *PostgresStore) List(ctx context.Context, limit, offset int) ([]*User, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(s scanner) (*User, error) {
	u := &User{}
	var (
		email, phone, passwordHash   sql.NullString
		provider, providerUserID     sql.NullString
		shopID, referredByCode       sql.NullString
		role, status                 string
		influencerAt, deletedAt      sql.NullTime
	)
	err := s.Scan(
		&u.ID, &email, &u.Name, &phone, &passwordHash, &provider, &providerUserID,
		&role, &shopID, &status, &u.ReferralCode, &referredByCode,
		&u.IsInfluencer, &influencerAt, &u.CreatedAt, &u.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Phone = phone.String
	u.PasswordHash = passwordHash.String
	u.Provider = provider.String
	u.ProviderUserID = providerUserID.String
	u.ShopID = shopID.String
	u.ReferredByCode = referredByCode.String
	u.Role = Role(role)
	u.Status = Status(status)
	if influencerAt.Valid {
		u.InfluencerQualifiedAt = &influencerAt.Time
	}
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	return u, nil
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

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
