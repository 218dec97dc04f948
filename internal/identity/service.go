package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/idgen"
	"github.com/modubeauty/modu/internal/logging"
	"github.com/modubeauty/modu/internal/user"
)

// Service drives the verification lifecycle.
type Service struct {
	store  Store
	users  *user.Service
	broker Broker
	now    func() time.Time
}

// NewService creates the identity verification service.
func NewService(store Store, users *user.Service, broker Broker) *Service {
	return &Service{store: store, users: users, broker: broker, now: time.Now}
}

// PrepareResult is what the client needs to start the broker flow.
type PrepareResult struct {
	ID          string `json:"id"`
	ClientToken string `json:"clientToken"`
}

// Prepare registers a verification attempt and returns the broker client
// token. Re-preparing the same verification ID for the same user returns a
// fresh token without a new record.
func (s *Service) Prepare(ctx context.Context, verificationID, userID string, r Restrictions) (*PrepareResult, error) {
	if verificationID == "" {
		return nil, errs.E(errs.KindValidation, "verificationId is required")
	}
	if r.MinAge < 0 {
		return nil, errs.E(errs.KindValidation, "minAge must not be negative")
	}

	existing, err := s.store.GetByVerificationID(ctx, verificationID)
	switch {
	case err == nil:
		if existing.UserID != userID {
			return nil, errs.E(errs.KindConflictIdempotent, "verification id belongs to another user")
		}
		if existing.Status != StatusReady {
			return nil, errs.E(errs.KindConflictState, "verification already concluded").
				WithDetails(map[string]any{"status": existing.Status})
		}
		token, err := s.broker.Prepare(ctx, verificationID, existing.Restrictions)
		if err != nil {
			return nil, err
		}
		return &PrepareResult{ID: existing.ID, ClientToken: token}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("lookup verification: %w", err)
	}

	token, err := s.broker.Prepare(ctx, verificationID, r)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &Record{
		ID:             idgen.WithPrefix("idv_"),
		VerificationID: verificationID,
		UserID:         userID,
		Status:         StatusReady,
		Restrictions:   r,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create verification: %w", err)
	}
	return &PrepareResult{ID: rec.ID, ClientToken: token}, nil
}

// Verify fetches the broker's authoritative result and concludes the
// record. Restrictions are re-checked server-side: the client-forwarded
// parameters are hints, never the enforcement point. A CI already held by
// another living account concludes as failed with duplicate_user.
func (s *Service) Verify(ctx context.Context, verificationID string) (*Record, error) {
	rec, err := s.store.GetByVerificationID(ctx, verificationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.Wrap(errs.KindNotFound, "verification not found", err)
		}
		return nil, fmt.Errorf("lookup verification: %w", err)
	}
	switch rec.Status {
	case StatusVerified:
		return rec, nil // concluded; re-verify is a read
	case StatusFailed:
		return nil, errs.E(errs.KindConflictState, "verification already failed").
			WithDetails(map[string]any{"failReason": rec.FailReason})
	}

	result, err := s.broker.Result(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		reason := result.FailReason
		if reason == "" {
			reason = "broker_rejected"
		}
		return s.fail(ctx, rec, reason)
	}

	if rec.Restrictions.MinAge > 0 {
		age, err := ageAt(result.BirthDate, s.now().UTC())
		if err != nil {
			return s.fail(ctx, rec, "invalid_birthdate")
		}
		if age < rec.Restrictions.MinAge {
			return s.fail(ctx, rec, "age_restriction")
		}
	}

	if taken, err := s.ciTaken(ctx, result.CI, rec.UserID); err != nil {
		return nil, err
	} else if taken {
		if _, err := s.fail(ctx, rec, "duplicate_user"); err != nil {
			return nil, err
		}
		return nil, errs.E(errs.KindDuplicateUser, "identity already registered to another account")
	}

	now := s.now().UTC()
	rec.Status = StatusVerified
	rec.CI = result.CI
	rec.DI = result.DI
	rec.Name = result.Name
	rec.BirthDate = result.BirthDate
	rec.Gender = result.Gender
	rec.Operator = result.Operator
	rec.VerifiedAt = &now
	rec.UpdatedAt = now
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("conclude verification: %w", err)
	}
	return rec, nil
}

// Status returns one record by its internal ID.
func (s *Service) Status(ctx context.Context, id string) (*Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.Wrap(errs.KindNotFound, "verification not found", err)
		}
		return nil, fmt.Errorf("get verification: %w", err)
	}
	return rec, nil
}

// ciTaken reports whether another living account already verified this CI.
// Records whose holder was deleted do not block re-registration.
func (s *Service) ciTaken(ctx context.Context, ci, userID string) (bool, error) {
	others, err := s.store.ListVerifiedByCI(ctx, ci)
	if err != nil {
		return false, fmt.Errorf("lookup ci: %w", err)
	}
	for _, other := range others {
		if other.UserID == userID {
			continue
		}
		holder, err := s.users.Get(ctx, other.UserID)
		if err != nil {
			if errs.IsKind(err, errs.KindNotFound) {
				continue
			}
			return false, fmt.Errorf("load ci holder: %w", err)
		}
		if holder.Status != user.StatusDeleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) fail(ctx context.Context, rec *Record, reason string) (*Record, error) {
	rec.Status = StatusFailed
	rec.FailReason = reason
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}
	logging.L(ctx).Info("identity verification failed",
		"verificationId", rec.VerificationID, "reason", reason)
	return rec, nil
}

// ageAt computes full years lived at ref for a YYYYMMDD birth date.
func ageAt(birthDate string, ref time.Time) (int, error) {
	born, err := time.Parse("20060102", birthDate)
	if err != nil {
		return 0, err
	}
	age := ref.Year() - born.Year()
	if ref.YearDay() < born.YearDay() {
		age--
	}
	if age < 0 {
		return 0, fmt.Errorf("birth date in the future")
	}
	return age, nil
}
