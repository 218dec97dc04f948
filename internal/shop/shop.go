// Package shop holds shop records, their service catalog, and the tenancy
// gate that keeps one shop's principals out of another shop's rows.
package shop

import (
	"context"
	"errors"
	"time"
)

var (
	ErrShopNotFound    = errors.New("shop: not found")
	ErrServiceNotFound = errors.New("shop: service not found")
)

// Status is a shop's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Verification is the platform review decision for a shop.
type Verification string

const (
	VerificationPending  Verification = "pending"
	VerificationVerified Verification = "verified"
	VerificationRejected Verification = "rejected"
)

// Shop is a tenant. Only active and verified shops are bookable.
type Shop struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"ownerId"`
	Name           string       `json:"name"`
	Type           string       `json:"type"` // hair | nail | waxing | eyelash | ...
	Status         Status       `json:"status"`
	Verification   Verification `json:"verification"`
	CommissionRate float64      `json:"commissionRate"` // platform fee, percent [0,100]
	Capacity       int          `json:"capacity"`       // concurrent reservations per slot
	Address        string       `json:"address,omitempty"`
	Phone          string       `json:"phone,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
	DeletedAt      *time.Time   `json:"-"`
}

// Bookable reports whether customers can reserve at this shop.
func (s *Shop) Bookable() bool {
	return s.Status == StatusActive && s.Verification == VerificationVerified
}

// Service is one bookable item in a shop's catalog. Prices are KRW.
type Service struct {
	ID              string     `json:"id"`
	ShopID          string     `json:"shopId"`
	Name            string     `json:"name"`
	PriceMin        int64      `json:"priceMin"`
	PriceMax        int64      `json:"priceMax"`
	DurationMinutes int        `json:"durationMinutes"`
	Available       bool       `json:"available"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	DeletedAt       *time.Time `json:"-"`
}

// Store persists shops and their catalogs.
type Store interface {
	CreateShop(ctx context.Context, s *Shop) error
	GetShop(ctx context.Context, id string) (*Shop, error)
	UpdateShop(ctx context.Context, s *Shop) error
	// ListShops returns shops; bookableOnly restricts to active+verified.
	ListShops(ctx context.Context, bookableOnly bool, limit, offset int) ([]*Shop, error)

	CreateService(ctx context.Context, svc *Service) error
	GetService(ctx context.Context, id string) (*Service, error)
	// GetServices loads a batch by ID, preserving no particular order.
	GetServices(ctx context.Context, ids []string) ([]*Service, error)
	UpdateService(ctx context.Context, svc *Service) error
	ListServices(ctx context.Context, shopID string) ([]*Service, error)
}
