package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/metrics"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/repository"
)

const (
	MsgActivated         = "Account activated successfully."
	MsgInvalidActivation = "Invalid activation token."
	MsgExpiredActivation = "Activation token has expired."
)

// ActivationService promotes pending registrations to user accounts.
type ActivationService struct {
	store  repository.Manager
	now    Clock
	logger *slog.Logger
}

func NewActivationService(store repository.Manager, logger *slog.Logger) *ActivationService {
	return &ActivationService{store: store, now: systemClock, logger: logger}
}

// ActivationResult carries the email of the account that was activated.
type ActivationResult struct {
	Email string
}

// Activate consumes a verification token.
//
//	unknown or malformed token → ErrInvalidToken
//	expired registration       → ErrExpired (the row is left for the reaper)
//	live registration          → user + profile created, pending row deleted
//
// The promotion runs in one transaction. A replayed token finds no row and
// fails as invalid, the same as a token that never existed.
func (s *ActivationService) Activate(ctx context.Context, rawToken string) (*ActivationResult, error) {
	token, err := uuid.Parse(rawToken)
	if err != nil {
		metrics.Activations.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, apperror.InvalidToken(MsgInvalidActivation)
	}

	var user *model.User
	err = s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		pending, err := repos.Pending().GetByToken(ctx, token)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.InvalidToken(MsgInvalidActivation)
			}
			return err
		}

		now := s.now()
		if pending.IsExpired(now) {
			return apperror.Expired(MsgExpiredActivation)
		}

		// The hash was computed once at registration and is copied as is.
		user = &model.User{
			ID:           uuid.New(),
			Email:        pending.Email,
			PasswordHash: pending.PasswordHash,
			FirstName:    pending.FirstName,
			LastName:     pending.LastName,
			IsActive:     true,
			DateJoined:   now,
		}
		if err := repos.Users().Create(ctx, user); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return apperror.InvalidToken(MsgInvalidActivation)
			}
			return err
		}
		if err := repos.Profiles().Ensure(ctx, user.ID); err != nil {
			return err
		}

		deleted, err := repos.Pending().Delete(ctx, pending.ID)
		if err != nil {
			return err
		}
		if !deleted {
			// A concurrent activation consumed the row first.
			return apperror.InvalidToken(MsgInvalidActivation)
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrInvalidToken):
			metrics.Activations.WithLabelValues(metrics.OutcomeInvalid).Inc()
			return nil, err
		case errors.Is(err, apperror.ErrExpired):
			metrics.Activations.WithLabelValues(metrics.OutcomeExpired).Inc()
			return nil, err
		default:
			metrics.Activations.WithLabelValues(metrics.OutcomeError).Inc()
			return nil, fmt.Errorf("service/activation: promoting registration: %w", err)
		}
	}

	metrics.Activations.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.logger.Info("account activated",
		slog.String("userID", user.ID.String()),
		slog.String("email", user.Email),
	)
	return &ActivationResult{Email: user.Email}, nil
}
