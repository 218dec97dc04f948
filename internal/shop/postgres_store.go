package shop

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists shops and catalogs in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed shop store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const shopColumns = `id, owner_id, name, type, status, verification, commission_rate,
	       capacity, address, phone, created_at, updated_at, deleted_at`

func (p *PostgresStore) CreateShop(ctx context.Context, s *Shop) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO shops (
			id, owner_id, name, type, status, verification, commission_rate,
			capacity, address, phone, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.OwnerID, s.Name, s.Type, string(s.Status), string(s.Verification),
		s.CommissionRate, s.Capacity, nullString(s.Address), nullString(s.Phone),
		s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetShop(ctx context.Context, id string) (*Shop, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+shopColumns+` FROM shops WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanShop(row)
}

func (p *PostgresStore) UpdateShop(ctx context.Context, s *Shop) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE shops SET
			name = $1, type = $2, status = $3, verification = $4,
			commission_rate = $5, capacity = $6, address = $7, phone = $8,
			updated_at = $9, deleted_at = $10
		WHERE id = $11`,
		s.Name, s.Type, string(s.Status), string(s.Verification),
		s.CommissionRate, s.Capacity, nullString(s.Address), nullString(s.Phone),
		s.UpdatedAt, nullTime(s.DeletedAt), s.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrShopNotFound
	}
	return nil
}

func (p *PostgresStore) ListShops(ctx context.Context, bookableOnly bool, limit, offset int) ([]*Shop, error) {
	query := `SELECT ` + shopColumns + ` FROM shops WHERE deleted_at IS NULL`
	if bookableOnly {
		query += ` AND status = 'active' AND verification = 'verified'`
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := p.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Shop
	for rows.Next() {
		s, err := scanShop(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

const serviceColumns = `id, shop_id, name, price_min, price_max, duration_minutes,
	       available, created_at, updated_at, deleted_at`

func (p *PostgresStore) CreateService(ctx context.Context, svc *Service) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO shop_services (
			id, shop_id, name, price_min, price_max, duration_minutes,
			available, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		svc.ID, svc.ShopID, svc.Name, svc.PriceMin, svc.PriceMax,
		svc.DurationMinutes, svc.Available, svc.CreatedAt, svc.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetService(ctx context.Context, id string) (*Service, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+serviceColumns+` FROM shop_services WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanService(row)
}

func (p *PostgresStore) GetServices(ctx context.Context, ids []string) ([]*Service, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+serviceColumns+` FROM shop_services
		WHERE id = ANY($1) AND deleted_at IS NULL`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, svc)
	}
	return result, rows.Err()
}

func (p *PostgresStore) UpdateService(ctx context.Context, svc *Service) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE shop_services SET
			name = $1, price_min = $2, price_max = $3, duration_minutes = $4,
			available = $5, updated_at = $6, deleted_at = $7
		WHERE id = $8 AND shop_id = $9`,
		svc.Name, svc.PriceMin, svc.PriceMax, svc.DurationMinutes,
		svc.Available, svc.UpdatedAt, nullTime(svc.DeletedAt), svc.ID, svc.ShopID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func (p *PostgresStore) ListServices(ctx context.Context, shopID string) ([]*Service, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+serviceColumns+` FROM shop_services
		WHERE shop_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC`, shopID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, svc)
	}
	return result, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanShop(s scanner) (*Shop, error) {
	sh := &Shop{}
	var (
		status, verification string
		address, phone       sql.NullString
		deletedAt            sql.NullTime
	)
	err := s.Scan(
		&sh.ID, &sh.OwnerID, &sh.Name, &sh.Type, &status, &verification,
		&sh.CommissionRate, &sh.Capacity, &address, &phone,
		&sh.CreatedAt, &sh.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrShopNotFound
	}
	if err != nil {
		return nil, err
	}
	sh.Status = Status(status)
	sh.Verification = Verification(verification)
	sh.Address = address.String
	sh.Phone = phone.String
	if deletedAt.Valid {
		sh.DeletedAt = &deletedAt.Time
	}
	return sh, nil
}

func scanService(s scanner) (*Service, error) {
	svc := &Service{}
	var deletedAt sql.NullTime
	err := s.Scan(
		&svc.ID, &svc.ShopID, &svc.Name, &svc.PriceMin, &svc.PriceMax,
		&svc.DurationMinutes, &svc.Available, &svc.CreatedAt, &svc.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		svc.DeletedAt = &deletedAt.Time
	}
	return svc, nil
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
