// Package dbsession projects the caller's identity into PostgreSQL as
// transaction-local session variables. Stores call Apply right after
// BeginTx; row-level security policies in the schema read the variables,
// so a query that slips past an application-level check still cannot
// cross tenants.
package dbsession

import (
	"context"
	"database/sql"
	"fmt"
)

// Identity is the principal projected into the database session.
type Identity struct {
	UserID string
	Role   string
	ShopID string
}

func applyIdentity(ctx context.Context, tx *sql.Tx, id Identity) error {
	// is_local=true scopes the variables to the transaction, so the pooled
	// connection returns to the pool with no principal state attached.
	_, err := tx.ExecContext(ctx, `
		SELECT set_config('app.current_user_id', $1, true),
		       set_config('app.current_role',    $2, true),
		       set_config('app.current_shop_id', $3, true)`,
		id.UserID, id.Role, id.ShopID,
	)
	if err != nil {
		return fmt.Errorf("set session identity: %w", err)
	}
	return nil
}
