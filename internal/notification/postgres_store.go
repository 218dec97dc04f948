package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists outbox rows in PostgreSQL. The unique index on
// (user_id, template_id, correlation_id) makes dedupe permanent there,
// which is stricter than the in-memory window and fine for producers.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed outbox store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const insertNotificationSQL = `
	INSERT INTO notifications (
		id, user_id, template_id, correlation_id, params, status,
		attempts, next_attempt_at, last_error, sent_at, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (user_id, template_id, correlation_id) DO NOTHING`

func insertNotification(ctx context.Context, q execer, n *Notification) (bool, error) {
	params, err := json.Marshal(n.Params)
	if err != nil {
		return false, fmt.Errorf("marshal notification params: %w", err)
	}
	result, err := q.ExecContext(ctx, insertNotificationSQL,
		n.ID, n.UserID, n.TemplateID, n.CorrelationID, params, string(n.Status),
		n.Attempts, n.NextAttemptAt, nullString(n.LastError), nullTime(n.SentAt),
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (p *PostgresStore) Insert(ctx context.Context, n *Notification) (bool, error) {
	return insertNotification(ctx, p.db, n)
}

func (p *PostgresStore) InsertTx(ctx context.Context, tx *sql.Tx, n *Notification) (bool, error) {
	return insertNotification(ctx, tx, n)
}

const notificationColumns = `id, user_id, template_id, correlation_id, params, status,
	       attempts, next_attempt_at, last_error, sent_at, created_at, updated_at`

func (p *PostgresStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*Notification, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY created_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, n *Notification) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE notifications SET
			status = $1, attempts = $2, next_attempt_at = $3, last_error = $4,
			sent_at = $5, updated_at = $6
		WHERE id = $7`,
		string(n.Status), n.Attempts, n.NextAttemptAt, nullString(n.LastError),
		nullTime(n.SentAt), n.UpdatedAt, n.ID,
	)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
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

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(s scanner) (*Notification, error) {
	n := &Notification{}
	var status string
	var params []byte
	var lastErr sql.NullString
	var sentAt sql.NullTime
	err := s.Scan(
		&n.ID, &n.UserID, &n.TemplateID, &n.CorrelationID, &params, &status,
		&n.Attempts, &n.NextAttemptAt, &lastErr, &sentAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	n.Status = Status(status)
	n.LastError = lastErr.String
	if sentAt.Valid {
		t := sentAt.Time
		n.SentAt = &t
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &n.Params); err != nil {
			return nil, fmt.Errorf("unmarshal notification params: %w", err)
		}
	}
	return n, nil
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
var _ TxInserter = (*PostgresStore)(nil)

// PostgresTokenStore persists device push tokens in PostgreSQL.
type PostgresTokenStore struct {
	db *sql.DB
}

// NewPostgresTokenStore creates a PostgreSQL-backed token store.
func NewPostgresTokenStore(db *sql.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db}
}

func (p *PostgresTokenStore) Upsert(ctx context.Context, t *PushToken) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO push_tokens (user_id, device_id, token, platform, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			token = EXCLUDED.token,
			platform = EXCLUDED.platform,
			active = TRUE,
			updated_at = EXCLUDED.updated_at`,
		t.UserID, t.DeviceID, t.Token, t.Platform, t.Active, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert push token: %w", err)
	}
	return nil
}

func (p *PostgresTokenStore) ListActive(ctx context.Context, userID string) ([]*PushToken, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, device_id, token, platform, active, created_at, updated_at
		FROM push_tokens
		WHERE user_id = $1 AND active = TRUE
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*PushToken
	for rows.Next() {
		t := &PushToken{}
		if err := rows.Scan(&t.UserID, &t.DeviceID, &t.Token, &t.Platform, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresTokenStore) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE push_tokens SET active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
	if err != nil {
		return fmt.Errorf("deactivate device: %w", err)
	}
	return nil
}

func (p *PostgresTokenStore) DeactivateToken(ctx context.Context, token string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE push_tokens SET active = FALSE, updated_at = NOW()
		WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("deactivate token: %w", err)
	}
	return nil
}

var _ TokenStore = (*PostgresTokenStore)(nil)
