package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/idgen"
)

const (
	referralCodeLength = 8
	// maxChainDepth bounds the referral-cycle walk. Chains deeper than this
	// are treated as cyclic rather than walked forever.
	maxChainDepth = 100
)

// SessionRevoker lets the user service invalidate auth sessions without
// importing the auth package. Role and status changes mass-revoke.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID, reason string) error
}

// Auditor records privileged mutations.
type Auditor interface {
	Audit(ctx context.Context, actorID, action, resourceType, resourceID string, before, after any, ip string)
}

// Service implements credential and profile operations on top of a Store.
type Service struct {
	store   Store
	revoker SessionRevoker
	auditor Auditor
}

// NewService creates a user service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// WithRevoker attaches the session revoker used on role/status changes.
func (s *Service) WithRevoker(r SessionRevoker) *Service {
	s.revoker = r
	return s
}

// WithAuditor attaches the audit recorder.
func (s *Service) WithAuditor(a Auditor) *Service {
	s.auditor = a
	return s
}

// Store exposes the underlying store for wiring.
func (s *Service) Store() Store { return s.store }

// SignupInput carries the fields for a new email/password account.
type SignupInput struct {
	Email          string
	Password       string
	Name           string
	Phone          string
	Role           Role
	ReferredByCode string
}

// Signup creates an email/password account. The referral code is issued
// here and is stable for the life of the account.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, error) {
	if in.Role == "" {
		in.Role = RoleCustomer
	}
	if !in.Role.Valid() || in.Role.IsAdmin() {
		return nil, errs.E(errs.KindValidation, "role not allowed at signup")
	}
	if len(in.Password) < 8 {
		return nil, errs.E(errs.KindValidation, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           idgen.WithPrefix("usr_"),
		Email:        NormalizeEmail(in.Email),
		Name:         in.Name,
		Phone:        in.Phone,
		PasswordHash: string(hash),
		Role:         in.Role,
		Status:       StatusActive,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if err := s.createWithReferralCode(ctx, u); err != nil {
		return nil, err
	}

	if in.ReferredByCode != "" {
		if err := s.SetReferredBy(ctx, u.ID, in.ReferredByCode); err != nil {
			// The account exists; a bad referral code only drops attribution.
			if errs.KindOf(err) == errs.KindInternal {
				return nil, err
			}
		} else {
			u.ReferredByCode = in.ReferredByCode
		}
	}

	return u, nil
}

// createWithReferralCode inserts u, retrying on referral-code collisions.
func (s *Service) createWithReferralCode(ctx context.Context, u *User) error {
	for attempt := 0; attempt < 5; attempt++ {
		u.ReferralCode = idgen.Code(referralCodeLength)
		err := s.store.Create(ctx, u)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if errors.Is(err, ErrEmailTaken) {
			return errs.Wrap(errs.KindConflictState, "email already registered", err)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return fmt.Errorf("create user: could not allocate a unique referral code")
}

// Authenticate checks an email/password pair and returns the principal.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.store.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.Wrap(errs.KindAuthInvalid, "invalid email or password", ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u.PasswordHash == "" {
		return nil, errs.Wrap(errs.KindAuthInvalid, "invalid email or password", ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errs.Wrap(errs.KindAuthInvalid, "invalid email or password", ErrInvalidCredentials)
	}
	if u.Status == StatusSuspended {
		return nil, errs.E(errs.KindForbidden, "account suspended")
	}
	if u.Status == StatusDeleted {
		return nil, errs.Wrap(errs.KindAuthInvalid, "invalid email or password", ErrInvalidCredentials)
	}
	return u, nil
}

// AuthenticateSocial finds or creates the principal for an external
// identity asserted by an OAuth provider. Provider token validation is
// the provider client's concern; this receives the verified subject.
func (s *Service) AuthenticateSocial(ctx context.Context, provider, providerUserID, email, name string) (*User, error) {
	u, err := s.store.GetBySocial(ctx, provider, providerUserID)
	if err == nil {
		if u.Status == StatusSuspended {
			return nil, errs.E(errs.KindForbidden, "account suspended")
		}
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup social identity: %w", err)
	}

	u = &User{
		ID:             idgen.WithPrefix("usr_"),
		Email:          NormalizeEmail(email),
		Name:           name,
		Provider:       provider,
		ProviderUserID: providerUserID,
		Role:           RoleCustomer,
		Status:         StatusActive,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.createWithReferralCode(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.Wrap(errs.KindNotFound, "user not found", err)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SetReferredBy records who referred this user. Set once; self-referral
// and chains that would loop back are rejected.
func (s *Service) SetReferredBy(ctx context.Context, userID, code string) error {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.ReferredByCode != "" {
		return errs.Wrap(errs.KindConflictState, "referred-by code already set", ErrReferredBySet)
	}
	if u.ReferralCode == code {
		return errs.Wrap(errs.KindValidation, "cannot use your own referral code", ErrReferralCycle)
	}

	referrer, err := s.store.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errs.Wrap(errs.KindNotFound, "referral code not found", err)
		}
		return fmt.Errorf("lookup referral code: %w", err)
	}
	if referrer.ID == u.ID {
		return errs.Wrap(errs.KindValidation, "cannot use your own referral code", ErrReferralCycle)
	}

	// Walk up from the referrer. Hitting u means u is already an ancestor
	// of the referrer and accepting the code would close a loop.
	cur := referrer
	for depth := 0; cur.ReferredByCode != ""; depth++ {
		if depth >= maxChainDepth {
			return errs.Wrap(errs.KindValidation, "referral chain too deep", ErrReferralCycle)
		}
		next, err := s.store.GetByReferralCode(ctx, cur.ReferredByCode)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				break // dangling historical code; chain ends here
			}
			return fmt.Errorf("walk referral chain: %w", err)
		}
		if next.ID == u.ID {
			return errs.Wrap(errs.KindValidation, "referral code would create a cycle", ErrReferralCycle)
		}
		cur = next
	}

	u.ReferredByCode = code
	u.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// UpdateRole changes a user's role and shop binding, revoking every
// outstanding session so stale tokens fail with role_changed.
func (s *Service) UpdateRole(ctx context.Context, actorID, userID string, role Role, shopID, ip string) (*User, error) {
	if !role.Valid() {
		return nil, errs.E(errs.KindValidation, "unknown role")
	}
	if role.IsShopRole() && shopID == "" {
		return nil, errs.E(errs.KindValidation, "shop roles require a shopId")
	}
	if !role.IsShopRole() {
		shopID = ""
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	before := *u

	u.Role = role
	u.ShopID = shopID
	u.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	if s.revoker != nil {
		_ = s.revoker.RevokeAllForUser(ctx, u.ID, "role_changed")
	}
	if s.auditor != nil {
		s.auditor.Audit(ctx, actorID, "user.role_changed", "user", u.ID,
			map[string]any{"role": before.Role, "shopId": before.ShopID},
			map[string]any{"role": u.Role, "shopId": u.ShopID}, ip)
	}
	return u, nil
}

// UpdateStatus suspends, reactivates, or soft-deletes a user.
func (s *Service) UpdateStatus(ctx context.Context, actorID, userID string, status Status, ip string) (*User, error) {
	switch status {
	case StatusActive, StatusSuspended, StatusDeleted:
	default:
		return nil, errs.E(errs.KindValidation, "unknown status")
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	before := u.Status

	u.Status = status
	now := time.Now().UTC()
	u.UpdatedAt = now
	if status == StatusDeleted {
		u.DeletedAt = &now
	}
	if err := s.store.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	if status != StatusActive && s.revoker != nil {
		_ = s.revoker.RevokeAllForUser(ctx, u.ID, "status_changed")
	}
	if s.auditor != nil {
		s.auditor.Audit(ctx, actorID, "user.status_changed", "user", u.ID,
			map[string]any{"status": before}, map[string]any{"status": status}, ip)
	}
	return u, nil
}

// MarkInfluencer promotes a user to the influencer tier. Returns false
// when the user was already promoted, making re-runs no-ops.
func (s *Service) MarkInfluencer(ctx context.Context, userID string) (bool, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.IsInfluencer {
		return false, nil
	}
	now := time.Now().UTC()
	u.IsInfluencer = true
	u.InfluencerQualifiedAt = &now
	u.UpdatedAt = now
	if err := s.store.Update(ctx, u); err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	return true, nil
}

// GetByReferralCode resolves a referral code to its owner.
func (s *Service) GetByReferralCode(ctx context.Context, code string) (*User, error) {
	u, err := s.store.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.Wrap(errs.KindNotFound, "referral code not found", err)
		}
		return nil, fmt.Errorf("lookup referral code: %w", err)
	}
	return u, nil
}
