package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/idgen"
)

// Auditor records privileged shop mutations.
type Auditor interface {
	Audit(ctx context.Context, actorID, action, resourceType, resourceID string, before, after any, ip string)
}

// Manager implements shop lifecycle and catalog operations.
type Manager struct {
	store   Store
	auditor Auditor
}

// NewManager creates a shop manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// WithAuditor attaches the audit recorder.
func (m *Manager) WithAuditor(a Auditor) *Manager {
	m.auditor = a
	return m
}

// Store exposes the underlying store for wiring.
func (m *Manager) Store() Store { return m.store }

// RegisterInput carries the fields for a new shop application.
type RegisterInput struct {
	OwnerID string
	Name    string
	Type    string
	Address string
	Phone   string
}

// Register creates a shop in pending/pending state awaiting approval.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (*Shop, error) {
	if in.Name == "" {
		return nil, errs.E(errs.KindValidation, "shop name is required")
	}
	now := time.Now().UTC()
	s := &Shop{
		ID:           idgen.WithPrefix("shp_"),
		OwnerID:      in.OwnerID,
		Name:         in.Name,
		Type:         in.Type,
		Status:       StatusPending,
		Verification: VerificationPending,
		Capacity:     1,
		Address:      in.Address,
		Phone:        in.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.CreateShop(ctx, s); err != nil {
		return nil, fmt.Errorf("create shop: %w", err)
	}
	return s, nil
}

// Get returns a shop by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Shop, error) {
	s, err := m.store.GetShop(ctx, id)
	if err != nil {
		if errors.Is(err, ErrShopNotFound) {
			return nil, errs.Wrap(errs.KindNotFound, "shop not found", err)
		}
		return nil, fmt.Errorf("get shop: %w", err)
	}
	return s, nil
}

// Browse lists bookable shops for the public directory.
func (m *Manager) Browse(ctx context.Context, limit, offset int) ([]*Shop, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return m.store.ListShops(ctx, true, limit, offset)
}

// ApproveInput is the admin approval decision.
type ApproveInput struct {
	Approved       bool
	CommissionRate *float64
	Type           string
	Capacity       *int
}

// Approve applies the platform review decision. Idempotent: approving an
// already-verified shop (or rejecting a rejected one) changes nothing.
func (m *Manager) Approve(ctx context.Context, actorID, shopID string, in ApproveInput, ip string) (*Shop, error) {
	if in.CommissionRate != nil && (*in.CommissionRate < 0 || *in.CommissionRate > 100) {
		return nil, errs.E(errs.KindValidation, "commissionRate must be within [0,100]")
	}
	if in.Capacity != nil && *in.Capacity < 1 {
		return nil, errs.E(errs.KindValidation, "capacity must be at least 1")
	}

	s, err := m.Get(ctx, shopID)
	if err != nil {
		return nil, err
	}

	target := VerificationRejected
	if in.Approved {
		target = VerificationVerified
	}
	if s.Verification == target && in.CommissionRate == nil && in.Type == "" && in.Capacity == nil {
		return s, nil // already decided; re-runs are no-ops
	}
	before := *s

	s.Verification = target
	if in.Approved {
		s.Status = StatusActive
	}
	if in.CommissionRate != nil {
		s.CommissionRate = *in.CommissionRate
	}
	if in.Type != "" {
		s.Type = in.Type
	}
	if in.Capacity != nil {
		s.Capacity = *in.Capacity
	}
	s.UpdatedAt = time.Now().UTC()

	if err := m.store.UpdateShop(ctx, s); err != nil {
		return nil, fmt.Errorf("update shop: %w", err)
	}
	if m.auditor != nil {
		m.auditor.Audit(ctx, actorID, "shop.approval_decided", "shop", s.ID,
			map[string]any{"status": before.Status, "verification": before.Verification, "commissionRate": before.CommissionRate},
			map[string]any{"status": s.Status, "verification": s.Verification, "commissionRate": s.CommissionRate}, ip)
	}
	return s, nil
}

// UpdateStatus suspends, reactivates, or soft-deletes a shop.
func (m *Manager) UpdateStatus(ctx context.Context, actorID, shopID string, status Status, ip string) (*Shop, error) {
	switch status {
	case StatusActive, StatusSuspended, StatusDeleted:
	default:
		return nil, errs.E(errs.KindValidation, "unknown status")
	}
	s, err := m.Get(ctx, shopID)
	if err != nil {
		return nil, err
	}
	before := s.Status

	s.Status = status
	now := time.Now().UTC()
	s.UpdatedAt = now
	if status == StatusDeleted {
		s.DeletedAt = &now
	}
	if err := m.store.UpdateShop(ctx, s); err != nil {
		return nil, fmt.Errorf("update shop: %w", err)
	}
	if m.auditor != nil {
		m.auditor.Audit(ctx, actorID, "shop.status_changed", "shop", s.ID,
			map[string]any{"status": before}, map[string]any{"status": status}, ip)
	}
	return s, nil
}

// ServiceInput carries the fields for a catalog item.
type ServiceInput struct {
	Name            string
	PriceMin        int64
	PriceMax        int64
	DurationMinutes int
	Available       *bool
}

func (in *ServiceInput) validate() error {
	if in.Name == "" {
		return errs.E(errs.KindValidation, "service name is required")
	}
	if in.PriceMin < 0 || in.PriceMax < in.PriceMin {
		return errs.E(errs.KindValidation, "price range must satisfy 0 <= priceMin <= priceMax")
	}
	if in.DurationMinutes <= 0 {
		return errs.E(errs.KindValidation, "durationMinutes must be positive")
	}
	return nil
}

// AddService adds a catalog item to a shop.
func (m *Manager) AddService(ctx context.Context, shopID string, in ServiceInput) (*Service, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := m.Get(ctx, shopID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	available := true
	if in.Available != nil {
		available = *in.Available
	}
	svc := &Service{
		ID:              idgen.WithPrefix("svc_"),
		ShopID:          shopID,
		Name:            in.Name,
		PriceMin:        in.PriceMin,
		PriceMax:        in.PriceMax,
		DurationMinutes: in.DurationMinutes,
		Available:       available,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.store.CreateService(ctx, svc); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

// UpdateService edits a catalog item. The service must belong to shopID;
// handlers include the shop in the predicate even though the tenancy gate
// already vetted the URL.
func (m *Manager) UpdateService(ctx context.Context, shopID, serviceID string, in ServiceInput) (*Service, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	svc, err := m.store.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return nil, errs.Wrap(errs.KindNotFound, "service not found", err)
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	if svc.ShopID != shopID {
		return nil, errs.E(errs.KindNotFound, "service not found")
	}

	svc.Name = in.Name
	svc.PriceMin = in.PriceMin
	svc.PriceMax = in.PriceMax
	svc.DurationMinutes = in.DurationMinutes
	if in.Available != nil {
		svc.Available = *in.Available
	}
	svc.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateService(ctx, svc); err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}
	return svc, nil
}

// ListServices returns a shop's catalog.
func (m *Manager) ListServices(ctx context.Context, shopID string) ([]*Service, error) {
	return m.store.ListServices(ctx, shopID)
}
