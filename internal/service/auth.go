package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/metrics"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/repository"
)

const (
	MsgInvalidCredentials = "Invalid credentials."
	MsgInactiveAccount    = "No active account found with the given credentials"
	MsgInvalidRefresh     = "Token is invalid or expired"
)

// LoginInput is the credentials payload.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthService checks credentials and issues session tokens.
//
// DEPENDENCIES:
//   - store      repository.Manager     → users and profiles
//   - passwords  *auth.PasswordService  → bcrypt verification
//   - tokens     *auth.TokenService     → access/refresh JWTs
type AuthService struct {
	store     repository.Manager
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	now       Clock
	logger    *slog.Logger
}

func NewAuthService(
	store repository.Manager,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:     store,
		passwords: passwords,
		tokens:    tokens,
		now:       systemClock,
		logger:    logger,
	}
}

// Login verifies email and password and returns a token pair.
//
// An unknown email and a wrong password produce the same error and cost the
// same bcrypt work. The inactive-account error is only given after the
// password has matched.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*auth.TokenPair, error) {
	email := model.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		metrics.Logins.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, apperror.Authentication(apperror.CodeInvalidCredentials, MsgInvalidCredentials)
	}

	users := s.store.Users()
	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.VerifyDummy(in.Password)
			metrics.Logins.WithLabelValues(metrics.OutcomeInvalid).Inc()
			return nil, apperror.Authentication(apperror.CodeInvalidCredentials, MsgInvalidCredentials)
		}
		metrics.Logins.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			metrics.Logins.WithLabelValues(metrics.OutcomeInvalid).Inc()
			return nil, apperror.Authentication(apperror.CodeInvalidCredentials, MsgInvalidCredentials)
		}
		metrics.Logins.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("service/auth: verifying password for %s: %w", user.ID, err)
	}

	if !user.IsActive {
		metrics.Logins.WithLabelValues(metrics.OutcomeInactive).Inc()
		return nil, apperror.Authentication(apperror.CodeInactiveAccount, MsgInactiveAccount)
	}

	pair, err := s.tokens.Issue(user.ID.String())
	if err != nil {
		metrics.Logins.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("service/auth: issuing tokens for %s: %w", user.ID, err)
	}

	if err := s.store.Profiles().Ensure(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("service/auth: ensuring profile for %s: %w", user.ID, err)
	}
	if err := users.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		// The tokens are already valid; a missed timestamp is not worth a failed login.
		s.logger.Warn("updating last login failed",
			slog.String("userID", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	metrics.Logins.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.logger.Info("user logged in", slog.String("userID", user.ID.String()))
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new pair. The account must
// still exist and be active.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	subject, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, apperror.Authentication(apperror.CodeUnauthorized, MsgInvalidRefresh)
	}

	user, err := s.GetUser(ctx, subject)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Authentication(apperror.CodeUnauthorized, MsgInvalidRefresh)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperror.Authentication(apperror.CodeInactiveAccount, MsgInactiveAccount)
	}

	pair, err := s.tokens.Issue(user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing tokens for %s: %w", user.ID, err)
	}
	return pair, nil
}

// GetUser returns the account for a token subject.
func (s *AuthService) GetUser(ctx context.Context, id string) (*model.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.NotFound("user", id)
	}

	user, err := s.store.Users().GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}
