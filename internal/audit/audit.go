// Package audit keeps the append-only audit and security event logs.
// Privileged mutations record before/after images; suspicious activity
// (cross-tenant probes, refresh-token reuse, rate-limit abuse) records
// security events. Writes go through a batched async writer unless the
// caller needs the event to commit with its business transaction.
package audit

import (
	"context"
	"database/sql"
	"time"
)

// AuditEvent is one privileged mutation.
type AuditEvent struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actorId"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Before       map[string]any `json:"before,omitempty"`
	After        map[string]any `json:"after,omitempty"`
	IP           string         `json:"ip,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// SecurityEvent is one suspicious-activity record.
type SecurityEvent struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actorId"`
	Kind      string         `json:"kind"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditQuery filters the audit log. Zero fields match everything.
type AuditQuery struct {
	ActorID      string
	ResourceType string
	ResourceID   string
	From         time.Time
	To           time.Time
	Cursor       string
	Limit        int
}

// SecurityQuery filters the security log.
type SecurityQuery struct {
	ActorID string
	Kind    string
	From    time.Time
	To      time.Time
	Cursor  string
	Limit   int
}

// Store persists both logs.
type Store interface {
	AppendAuditBatch(ctx context.Context, events []*AuditEvent) error
	AppendSecurityBatch(ctx context.Context, events []*SecurityEvent) error

	// QueryAudit returns a page plus the cursor for the next one
	// (empty when exhausted).
	QueryAudit(ctx context.Context, q AuditQuery) ([]*AuditEvent, string, error)
	QuerySecurity(ctx context.Context, q SecurityQuery) ([]*SecurityEvent, string, error)
}

// TxAppender writes events inside a caller-owned transaction so the event
// commits (or rolls back) with the business mutation it describes.
// PostgresStore implements it; MemoryStore ignores the tx.
type TxAppender interface {
	AppendAuditTx(ctx context.Context, tx *sql.Tx, e *AuditEvent) error
	AppendSecurityTx(ctx context.Context, tx *sql.Tx, e *SecurityEvent) error
}
