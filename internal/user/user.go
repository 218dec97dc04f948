// Package user implements the credential store: principal records,
// password and social login, and referral code issuance.
//
// A user is the single principal type for the whole platform. Customers,
// shop staff, and platform admins differ only by role; shop roles carry
// the shop they belong to.
package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound           = errors.New("user: not found")
	ErrEmailTaken         = errors.New("user: email already registered")
	ErrInvalidCredentials = errors.New("user: invalid credentials")
	ErrCodeTaken          = errors.New("user: referral code already taken")
	ErrReferredBySet      = errors.New("user: referred-by code already set")
	ErrReferralCycle      = errors.New("user: referral chain would form a cycle")
)

// Role identifies what a principal may do. Shop roles are bound to a shop.
type Role string

const (
	RoleCustomer    Role = "customer"
	RoleShopOwner   Role = "shop_owner"
	RoleShopManager Role = "shop_manager"
	RoleShopStaff   Role = "shop_staff"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
)

// IsShopRole reports whether the role must carry a shop binding.
func (r Role) IsShopRole() bool {
	switch r {
	case RoleShopOwner, RoleShopManager, RoleShopStaff:
		return true
	}
	return false
}

// IsAdmin reports whether the role has platform-wide scope.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleShopOwner, RoleShopManager, RoleShopStaff, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Status is a user's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// User is a principal record. PasswordHash and the social subject never
// serialize; only the service compares them.
type User struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	Name                  string     `json:"name"`
	Phone                 string     `json:"phone,omitempty"`
	PasswordHash          string     `json:"-"`
	Provider              string     `json:"provider,omitempty"`
	ProviderUserID        string     `json:"-"`
	Role                  Role       `json:"role"`
	ShopID                string     `json:"shopId,omitempty"`
	Status                Status     `json:"status"`
	ReferralCode          string     `json:"referralCode"`
	ReferredByCode        string     `json:"referredByCode,omitempty"`
	IsInfluencer          bool       `json:"isInfluencer"`
	InfluencerQualifiedAt *time.Time `json:"influencerQualifiedAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
	DeletedAt             *time.Time `json:"-"`
}

// Store persists user records. Implementations return the package sentinel
// errors; callers never see driver errors for the common cases.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetBySocial(ctx context.Context, provider, providerUserID string) (*User, error)
	GetByReferralCode(ctx context.Context, code string) (*User, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, limit, offset int) ([]*User, error)
}

// NormalizeEmail lowercases and trims an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
