package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/repository"
)

// SuperuserInput describes an operator account created from the CLI.
type SuperuserInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AccountService covers administrative account operations that bypass the
// email activation flow.
type AccountService struct {
	store     repository.Manager
	passwords *auth.PasswordService
	policy    *auth.PasswordPolicy
	now       Clock
	logger    *slog.Logger
}

func NewAccountService(
	store repository.Manager,
	passwords *auth.PasswordService,
	policy *auth.PasswordPolicy,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		store:     store,
		passwords: passwords,
		policy:    policy,
		now:       systemClock,
		logger:    logger,
	}
}

// CreateSuperuser creates an active staff+superuser account with a profile.
// The email must not be used by an account or a pending registration.
func (s *AccountService) CreateSuperuser(ctx context.Context, in SuperuserInput) (*model.User, error) {
	in.Email = model.NormalizeEmail(in.Email)

	fields, err := fieldErrors(validation.ValidateStruct(&in,
		validation.Field(&in.Email,
			validation.Required.Error("This field is required."),
			validation.Length(0, MaxEmailLength),
			is.Email.Error("Enter a valid email address."),
		),
		validation.Field(&in.Password, validation.Required.Error("This field is required.")),
		validation.Field(&in.FirstName, validation.RuneLength(0, MaxNameLength)),
		validation.Field(&in.LastName, validation.RuneLength(0, MaxNameLength)),
	))
	if err != nil {
		return nil, fmt.Errorf("service/account: validating input: %w", err)
	}
	if in.Password != "" {
		violations := s.policy.Check(in.Password, map[string]string{
			"email":      in.Email,
			"first name": in.FirstName,
			"last name":  in.LastName,
		})
		if len(violations) > 0 {
			if fields == nil {
				fields = map[string][]string{}
			}
			fields["password"] = append(fields["password"], violations...)
		}
	}
	if err := validationError(fields); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/account: hashing password: %w", err)
	}

	user := &model.User{
		ID:           uuid.New(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActive:     true,
		IsStaff:      true,
		IsSuperuser:  true,
		DateJoined:   s.now(),
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		taken, err := emailTaken(ctx, repos, user.Email)
		if err != nil {
			return err
		}
		if taken {
			return apperror.Conflict("email", MsgDuplicateEmail)
		}
		if err := repos.Users().Create(ctx, user); err != nil {
			return err
		}
		return repos.Profiles().Ensure(ctx, user.ID)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Conflict("email", MsgDuplicateEmail)
		}
		return nil, fmt.Errorf("service/account: creating superuser: %w", err)
	}

	s.logger.Info("superuser created",
		slog.String("userID", user.ID.String()),
		slog.String("email", user.Email),
	)
	return user, nil
}
