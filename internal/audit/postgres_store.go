package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgresStore persists the audit and security logs in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) AppendAuditBatch(ctx context.Context, events []*AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("audit_events",
		"id", "actor_id", "action", "resource_type", "resource_id",
		"before", "after", "ip", "created_at"))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare audit copy: %w", err)
	}
	for _, e := range events {
		before, after := marshalJSON(e.Before), marshalJSON(e.After)
		if _, err := stmt.ExecContext(ctx, e.ID, e.ActorID, e.Action,
			e.ResourceType, e.ResourceID, before, after, e.IP, e.CreatedAt); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("copy audit event: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		_ = tx.Rollback()
		return fmt.Errorf("flush audit copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("close audit copy: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresStore) AppendSecurityBatch(ctx context.Context, events []*SecurityEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin security batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("security_events",
		"id", "actor_id", "kind", "details", "created_at"))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare security copy: %w", err)
	}
	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.ID, e.ActorID, e.Kind,
			marshalJSON(e.Details), e.CreatedAt); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("copy security event: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		_ = tx.Rollback()
		return fmt.Errorf("flush security copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("close security copy: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresStore) AppendAuditTx(ctx context.Context, tx *sql.Tx, e *AuditEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_events (id, actor_id, action, resource_type, resource_id, before, after, ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ActorID, e.Action, e.ResourceType, e.ResourceID,
		marshalJSON(e.Before), marshalJSON(e.After), e.IP, e.CreatedAt,
	)
	return err
}

func (p *PostgresStore) AppendSecurityTx(ctx context.Context, tx *sql.Tx, e *SecurityEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO security_events (id, actor_id, kind, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.ActorID, e.Kind, marshalJSON(e.Details), e.CreatedAt,
	)
	return err
}

func (p *PostgresStore) QueryAudit(ctx context.Context, q AuditQuery) ([]*AuditEvent, string, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.ActorID != "" {
		add("actor_id = $%d", q.ActorID)
	}
	if q.ResourceType != "" {
		add("resource_type = $%d", q.ResourceType)
	}
	if q.ResourceID != "" {
		add("resource_id = $%d", q.ResourceID)
	}
	if !q.From.IsZero() {
		add("created_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("created_at <= $%d", q.To)
	}
	if q.Cursor != "" {
		add("(created_at, id) < (SELECT created_at, id FROM audit_events WHERE id = $%d)", q.Cursor)
	}
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT id, actor_id, action, resource_type, resource_id, before, after, ip, created_at
		FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rows.Close() }()

	var result []*AuditEvent
	for rows.Next() {
		e := &AuditEvent{}
		var before, after []byte
		var ip sql.NullString
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.ResourceType,
			&e.ResourceID, &before, &after, &ip, &e.CreatedAt); err != nil {
			return nil, "", err
		}
		e.Before = unmarshalJSON(before)
		e.After = unmarshalJSON(after)
		e.IP = ip.String
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(result) > limit {
		result = result[:limit]
		next = result[len(result)-1].ID
	}
	return result, next, nil
}

func (p *PostgresStore) QuerySecurity(ctx context.Context, q SecurityQuery) ([]*SecurityEvent, string, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.ActorID != "" {
		add("actor_id = $%d", q.ActorID)
	}
	if q.Kind != "" {
		add("kind = $%d", q.Kind)
	}
	if !q.From.IsZero() {
		add("created_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("created_at <= $%d", q.To)
	}
	if q.Cursor != "" {
		add("(created_at, id) < (SELECT created_at, id FROM security_events WHERE id = $%d)", q.Cursor)
	}
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT id, actor_id, kind, details, created_at FROM security_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rows.Close() }()

	var result []*SecurityEvent
	for rows.Next() {
		e := &SecurityEvent{}
		var details []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Kind, &details, &e.CreatedAt); err != nil {
			return nil, "", err
		}
		e.Details = unmarshalJSON(details)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(result) > limit {
		result = result[:limit]
		next = result[len(result)-1].ID
	}
	return result, next, nil
}

func marshalJSON(m map[string]any) []byte {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

func unmarshalJSON(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

var (
	_ Store      = (*PostgresStore)(nil)
	_ TxAppender = (*PostgresStore)(nil)
)
