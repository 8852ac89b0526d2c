package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/repository"
)

// DateLayout is the wire format of birth_date.
const DateLayout = "2006-01-02"

// MsgInactiveProfile answers a profile write from a deactivated account
// whose access token has not expired yet.
const MsgInactiveProfile = "Inactive accounts cannot change their profile."

// ProfileInput is a profile update. Nil fields keep their stored value;
// an empty BirthDate clears it.
type ProfileInput struct {
	Bio       *string `json:"bio"`
	Location  *string `json:"location"`
	BirthDate *string `json:"birth_date"`
}

// ProfileService reads and writes the caller's own profile.
type ProfileService struct {
	store  repository.Manager
	now    Clock
	logger *slog.Logger
}

func NewProfileService(store repository.Manager, logger *slog.Logger) *ProfileService {
	return &ProfileService{store: store, now: systemClock, logger: logger}
}

// Get returns the profile of userID, or ErrNotFound if none was created yet.
func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, apperror.NotFound("profile", userID)
	}

	p, err := s.store.Profiles().Get(ctx, uid)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/profile: fetching profile %s: %w", userID, err)
	}
	return p, nil
}

// Update applies in to the profile of userID, creating it if absent. The
// account must still exist and be active: an access token outlives a
// deactivation, so the check is made here and not only at login.
func (s *ProfileService) Update(ctx context.Context, userID string, in ProfileInput) (*model.Profile, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, apperror.NotFound("user", userID)
	}

	birthDate, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	var profile *model.Profile
	err = s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		user, err := repos.Users().GetByID(ctx, uid)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return apperror.Forbidden(MsgInactiveProfile)
		}

		current, err := repos.Profiles().Get(ctx, uid)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			current = &model.Profile{UserID: uid}
		case err != nil:
			return err
		}

		if in.Bio != nil {
			current.Bio = strings.TrimSpace(*in.Bio)
		}
		if in.Location != nil {
			current.Location = strings.TrimSpace(*in.Location)
		}
		if in.BirthDate != nil {
			current.BirthDate = birthDate
		}

		if err := repos.Profiles().Upsert(ctx, current); err != nil {
			return err
		}
		profile = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/profile: updating profile %s: %w", userID, err)
	}

	s.logger.Info("profile updated", slog.String("userID", userID))
	return profile, nil
}

// validate checks field limits and parses birth_date. The returned date is
// nil when birth_date is absent or empty.
func (s *ProfileService) validate(in ProfileInput) (*time.Time, error) {
	var bio, location, rawDate string
	if in.Bio != nil {
		bio = strings.TrimSpace(*in.Bio)
	}
	if in.Location != nil {
		location = strings.TrimSpace(*in.Location)
	}
	if in.BirthDate != nil {
		rawDate = strings.TrimSpace(*in.BirthDate)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	dateRule := validation.Date(DateLayout).
		Max(today).
		Error("Date has wrong format. Use YYYY-MM-DD.").
		RangeError("Birth date cannot be in the future.")

	fields, err := fieldErrors(validation.Errors{
		"bio": validation.Validate(bio,
			validation.RuneLength(0, MaxBioLength).Error(fmt.Sprintf("Ensure this field has no more than %d characters.", MaxBioLength))),
		"location": validation.Validate(location,
			validation.RuneLength(0, MaxLocationLength).Error(fmt.Sprintf("Ensure this field has no more than %d characters.", MaxLocationLength))),
		"birth_date": validation.Validate(rawDate, dateRule),
	}.Filter())
	if err != nil {
		return nil, fmt.Errorf("service/profile: validating input: %w", err)
	}
	if err := validationError(fields); err != nil {
		return nil, err
	}

	if rawDate == "" {
		return nil, nil
	}
	d, _ := time.Parse(DateLayout, rawDate)
	return &d, nil
}
