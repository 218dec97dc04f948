package reservation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/modubeauty/modu/internal/dbsession"
)

// PostgresStore persists reservations in PostgreSQL. Slot admission uses a
// transaction-scoped advisory lock on the shop's day bucket.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx // when set, all statements run on this transaction
}

// NewPostgresStore creates a PostgreSQL-backed reservation store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithTx returns a store bound to tx. Used by the payment orchestrator so
// reservation moves land in the webhook transaction.
func (p *PostgresStore) WithTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: p.db, tx: tx}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *PostgresStore) q() querier {
	if p.tx != nil {
		return p.tx
	}
	return p.db
}

const reservationColumns = `r.id, r.shop_id, r.customer_id, r.datetime, r.end_time,
	       r.duration_minutes, r.total_amount, r.points_used, r.status, r.memo,
	       r.created_at, r.updated_at`

func (p *PostgresStore) CreateLocked(ctx context.Context, res *Reservation, capacity int, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if p.tx != nil {
		return p.createLocked(ctx, p.tx, res, capacity, fn)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := dbsession.Apply(ctx, tx); err != nil {
		return err
	}
	if err := p.createLocked(ctx, tx, res, capacity, fn); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) createLocked(ctx context.Context, tx *sql.Tx, res *Reservation, capacity int, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(res.ShopID, res.Datetime)); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	var overlapping int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE shop_id = $1
		  AND status IN ('confirmed', 'in_progress')
		  AND datetime < $3 AND $2 < end_time`,
		res.ShopID, res.Datetime, res.EndTime,
	).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("count overlaps: %w", err)
	}
	if overlapping >= capacity {
		return ErrSlotConflict
	}

	if fn != nil {
		if err := fn(ctx, tx); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (
			id, shop_id, customer_id, datetime, end_time, duration_minutes,
			total_amount, points_used, status, memo, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		res.ID, res.ShopID, res.CustomerID, res.Datetime, res.EndTime, res.DurationMinutes,
		res.TotalAmount, res.PointsUsed, string(res.Status), nullString(res.Memo),
		res.CreatedAt, res.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	for i, serviceID := range res.ServiceIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reservation_services (reservation_id, service_id, position)
			VALUES ($1, $2, $3)`,
			res.ID, serviceID, i,
		); err != nil {
			return fmt.Errorf("insert reservation service: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reservation_status_log (id, reservation_id, from_status, to_status, actor, reason, at)
		VALUES ($1, $2, NULL, $3, $4, NULL, $5)`,
		res.ID+"-log0", res.ID, string(StatusRequested), res.CustomerID, res.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert status log: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Reservation, error) {
	row := p.q().QueryRowContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations r WHERE r.id = $1`, id)
	res, err := scanReservation(row)
	if err != nil {
		return nil, err
	}
	if err := p.loadServiceIDs(ctx, []*Reservation{res}); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *PostgresStore) UpdateStatusLogged(ctx context.Context, res *Reservation, log *StatusLog, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if p.tx != nil {
		return p.updateStatusLogged(ctx, p.tx, res, log, fn)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := dbsession.Apply(ctx, tx); err != nil {
		return err
	}
	if err := p.updateStatusLogged(ctx, tx, res, log, fn); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) updateStatusLogged(ctx context.Context, tx *sql.Tx, res *Reservation, log *StatusLog, fn func(ctx context.Context, tx *sql.Tx) error) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE reservations SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(res.Status), res.UpdatedAt, res.ID, string(log.From),
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reservation_status_log (id, reservation_id, from_status, to_status, actor, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ID, log.ReservationID, string(log.From), string(log.To),
		log.Actor, nullString(log.Reason), log.At,
	); err != nil {
		return fmt.Errorf("insert status log: %w", err)
	}
	if fn != nil {
		if err := fn(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, q ListQuery) ([]*Reservation, error) {
	conds := []string{"r.shop_id = $1"}
	args := []any{q.ShopID}
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.CustomerID != "" {
		add("r.customer_id = $%d", q.CustomerID)
	}
	if q.Status != "" {
		add("r.status = $%d", string(q.Status))
	}
	if !q.From.IsZero() {
		add("r.datetime >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("r.datetime <= $%d", q.To)
	}
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit, q.Offset)

	rows, err := p.q().QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations r
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY r.datetime ASC
		LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := p.loadServiceIDs(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *PostgresStore) StatusLogs(ctx context.Context, reservationID string) ([]*StatusLog, error) {
	rows, err := p.q().QueryContext(ctx, `
		SELECT id, reservation_id, from_status, to_status, actor, reason, at
		FROM reservation_status_log WHERE reservation_id = $1 ORDER BY at ASC`, reservationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*StatusLog
	for rows.Next() {
		l := &StatusLog{}
		var from, reason sql.NullString
		if err := rows.Scan(&l.ID, &l.ReservationID, &from, &l.To, &l.Actor, &reason, &l.At); err != nil {
			return nil, err
		}
		l.From = Status(from.String)
		l.Reason = reason.String
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListStaleRequested(ctx context.Context, cutoff time.Time, limit int) ([]*Reservation, error) {
	return p.listWhere(ctx, `r.status = 'requested' AND r.created_at < $1`, cutoff, limit)
}

func (p *PostgresStore) ListOverdueConfirmed(ctx context.Context, cutoff time.Time, limit int) ([]*Reservation, error) {
	return p.listWhere(ctx, `r.status = 'confirmed' AND r.datetime < $1`, cutoff, limit)
}

func (p *PostgresStore) listWhere(ctx context.Context, cond string, cutoff time.Time, limit int) ([]*Reservation, error) {
	rows, err := p.q().QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations r
		WHERE `+cond+` ORDER BY r.created_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := p.loadServiceIDs(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// loadServiceIDs fills the junction rows for a batch of reservations.
func (p *PostgresStore) loadServiceIDs(ctx context.Context, reservations []*Reservation) error {
	if len(reservations) == 0 {
		return nil
	}
	ids := make([]string, len(reservations))
	byID := make(map[string]*Reservation, len(reservations))
	for i, r := range reservations {
		ids[i] = r.ID
		byID[r.ID] = r
	}
	rows, err := p.q().QueryContext(ctx, `
		SELECT reservation_id, service_id FROM reservation_services
		WHERE reservation_id = ANY($1) ORDER BY reservation_id, position`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var resID, svcID string
		if err := rows.Scan(&resID, &svcID); err != nil {
			return err
		}
		if r, ok := byID[resID]; ok {
			r.ServiceIDs = append(r.ServiceIDs, svcID)
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(s scanner) (*Reservation, error) {
	res := &Reservation{}
	var status string
	var memo sql.NullString
	err := s.Scan(
		&res.ID, &res.ShopID, &res.CustomerID, &res.Datetime, &res.EndTime,
		&res.DurationMinutes, &res.TotalAmount, &res.PointsUsed, &status, &memo,
		&res.CreatedAt, &res.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	res.Status = Status(status)
	res.Memo = memo.String
	return res, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
