package auth

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists auth sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, user_id, refresh_hash, device_fingerprint, user_agent, ip,
	       issued_at, expires_at, rotated_from, revoked_at, revoke_reason`

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (
			id, user_id, refresh_hash, device_fingerprint, user_agent, ip,
			issued_at, expires_at, rotated_from, revoked_at, revoke_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.UserID, s.RefreshHash,
		nullString(s.DeviceFingerprint), nullString(s.UserAgent), nullString(s.IP),
		s.IssuedAt, s.ExpiresAt, nullString(s.RotatedFrom),
		nullTime(s.RevokedAt), nullString(s.RevokeReason),
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM auth_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (p *PostgresStore) GetByRefreshHash(ctx context.Context, hash string) (*Session, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM auth_sessions WHERE refresh_hash = $1`, hash)
	return scanSession(row)
}

func (p *PostgresStore) GetSuccessor(ctx context.Context, id string) (*Session, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM auth_sessions WHERE rotated_from = $1`, id)
	s, err := scanSession(row)
	if err == ErrSessionNotFound {
		return nil, nil
	}
	return s, err
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM auth_sessions
		WHERE user_id = $1
		ORDER BY issued_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, s *Session) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE auth_sessions SET
			refresh_hash = $1, expires_at = $2, revoked_at = $3, revoke_reason = $4
		WHERE id = $5`,
		s.RefreshHash, s.ExpiresAt, nullTime(s.RevokedAt), nullString(s.RevokeReason), s.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *PostgresStore) RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE auth_sessions
		SET revoked_at = $1, revoke_reason = $2
		WHERE user_id = $3 AND revoked_at IS NULL`,
		at, reason, userID,
	)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(s scanner) (*Session, error) {
	sess := &Session{}
	var (
		device, userAgent, ip sql.NullString
		rotatedFrom, reason   sql.NullString
		revokedAt             sql.NullTime
	)
	err := s.Scan(
		&sess.ID, &sess.UserID, &sess.RefreshHash, &device, &userAgent, &ip,
		&sess.IssuedAt, &sess.ExpiresAt, &rotatedFrom, &revokedAt, &reason,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.DeviceFingerprint = device.String
	sess.UserAgent = userAgent.String
	sess.IP = ip.String
	sess.RotatedFrom = rotatedFrom.String
	sess.RevokeReason = reason.String
	if revokedAt.Valid {
		sess.RevokedAt = &revokedAt.Time
	}
	return sess, nil
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
