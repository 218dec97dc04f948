package dbsession

import (
	"context"
	"database/sql"
)

type identityKey struct{}

// WithIdentity stashes the caller's identity in ctx. The HTTP layer calls
// this once the principal is resolved; stores pick it up via Apply when
// they open their own transactions.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity previously stored with WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Apply binds the context identity to tx as transaction-local variables.
// A context without an identity (background sweeps, tests) is a no-op, so
// every store can call it unconditionally after BeginTx.
func Apply(ctx context.Context, tx *sql.Tx) error {
	id, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return applyIdentity(ctx, tx, id)
}
