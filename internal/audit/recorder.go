package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/modubeauty/modu/internal/idgen"
	"github.com/modubeauty/modu/internal/metrics"
)

// Recorder is the write-side API handed to the rest of the codebase. It
// satisfies the consumer-side Auditor / SecurityRecorder interfaces that
// the user, shop, and auth packages declare.
type Recorder struct {
	writer *Writer
	tx     TxAppender
}

// NewRecorder creates a recorder over the async writer.
func NewRecorder(writer *Writer) *Recorder {
	return &Recorder{writer: writer}
}

// WithTxAppender enables the InTx variants.
func (r *Recorder) WithTxAppender(tx TxAppender) *Recorder {
	r.tx = tx
	return r
}

func toMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": v}
}

// Audit records a privileged mutation. Fire-and-forget: the event rides
// the async writer and a full buffer drops it rather than slow the request.
func (r *Recorder) Audit(ctx context.Context, actorID, action, resourceType, resourceID string, before, after any, ip string) {
	r.writer.enqueue(writerMsg{audit: &AuditEvent{
		ID:           idgen.WithPrefix("aud_"),
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Before:       toMap(before),
		After:        toMap(after),
		IP:           ip,
		CreatedAt:    time.Now().UTC(),
	}})
}

// Security records a suspicious-activity event.
func (r *Recorder) Security(ctx context.Context, actorID, kind string, details map[string]any) {
	metrics.SecurityEventsTotal.WithLabelValues(kind).Inc()
	r.writer.enqueue(writerMsg{security: &SecurityEvent{
		ID:        idgen.WithPrefix("sec_"),
		ActorID:   actorID,
		Kind:      kind,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}})
}

// AuditInTx writes the event inside tx so it commits with the mutation it
// describes. Used by the reservation and payment flows.
func (r *Recorder) AuditInTx(ctx context.Context, tx *sql.Tx, actorID, action, resourceType, resourceID string, before, after any, ip string) error {
	if r.tx == nil {
		r.Audit(ctx, actorID, action, resourceType, resourceID, before, after, ip)
		return nil
	}
	return r.tx.AppendAuditTx(ctx, tx, &AuditEvent{
		ID:           idgen.WithPrefix("aud_"),
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Before:       toMap(before),
		After:        toMap(after),
		IP:           ip,
		CreatedAt:    time.Now().UTC(),
	})
}

// SecurityInTx writes the security event inside tx.
func (r *Recorder) SecurityInTx(ctx context.Context, tx *sql.Tx, actorID, kind string, details map[string]any) error {
	if r.tx == nil {
		r.Security(ctx, actorID, kind, details)
		return nil
	}
	metrics.SecurityEventsTotal.WithLabelValues(kind).Inc()
	return r.tx.AppendSecurityTx(ctx, tx, &SecurityEvent{
		ID:        idgen.WithPrefix("sec_"),
		ActorID:   actorID,
		Kind:      kind,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	})
}
