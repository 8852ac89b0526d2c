package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/metrics"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/notify"
	"github.com/sakif/accounts/internal/ratelimit"
	"github.com/sakif/accounts/internal/repository"
)

// DefaultPendingTTL is how long an activation link stays valid.
const DefaultPendingTTL = 10 * time.Minute

// User-facing registration messages.
const (
	MsgRegistered         = "Registration successful. Please check your email to activate your account."
	MsgNotificationFailed = "Registration successful, but failed to send activation email"
	MsgPasswordsRequired  = "Both password and confirm password are required."
	MsgPasswordMismatch   = "Password confirmation do not match."
	MsgDuplicateEmail     = "A user with this email already exists or is pending verification."
	MsgResendAccepted     = "If a pending registration exists for this email, a new activation link has been sent."
)

// RegisterInput is the signup payload.
type RegisterInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

// normalize lowercases the email and trims the names. Passwords are left
// exactly as typed.
func (in *RegisterInput) normalize() {
	in.Email = model.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
}

// RegisterResult is returned on success. Warning is set when the pending
// registration was stored but the activation email could not be sent.
type RegisterResult struct {
	Email   string
	Warning string
}

// RegistrationService stages signups as pending registrations and mails
// the activation link.
type RegistrationService struct {
	store      repository.Manager
	passwords  *auth.PasswordService
	policy     *auth.PasswordPolicy
	limiter    *ratelimit.Limiter
	dispatcher notify.Dispatcher
	links      notify.LinkBuilder
	pendingTTL time.Duration
	now        Clock
	logger     *slog.Logger
}

func NewRegistrationService(
	store repository.Manager,
	passwords *auth.PasswordService,
	policy *auth.PasswordPolicy,
	limiter *ratelimit.Limiter,
	dispatcher notify.Dispatcher,
	links notify.LinkBuilder,
	pendingTTL time.Duration,
	logger *slog.Logger,
) *RegistrationService {
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	return &RegistrationService{
		store:      store,
		passwords:  passwords,
		policy:     policy,
		limiter:    limiter,
		dispatcher: dispatcher,
		links:      links,
		pendingTTL: pendingTTL,
		now:        systemClock,
		logger:     logger,
	}
}

// Register validates the signup, stores a pending registration and sends
// the activation email.
//
// Steps:
//  1. Rate limit by clientKey (ErrThrottled)
//  2. Field validation and password policy (ErrValidation)
//  3. Hash the password, once
//  4. In one transaction: reject an email present in either store, insert
//     the pending row (ErrConflict, also for a lost insert race)
//  5. Send the activation link; a failure only sets Warning
func (s *RegistrationService) Register(ctx context.Context, clientKey string, in RegisterInput) (*RegisterResult, error) {
	if err := s.limiter.Allow(ctx, clientKey); err != nil {
		metrics.Registrations.WithLabelValues(metrics.OutcomeThrottled).Inc()
		return nil, err
	}

	in.normalize()
	if err := s.validate(in); err != nil {
		metrics.Registrations.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/registration: hashing password: %w", err)
	}

	now := s.now()
	pending := &model.PendingRegistration{
		ID:           uuid.New(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Token:        uuid.New(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.pendingTTL),
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		taken, err := emailTaken(ctx, repos, in.Email)
		if err != nil {
			return err
		}
		if taken {
			return apperror.Conflict("email", MsgDuplicateEmail)
		}
		return repos.Pending().Create(ctx, pending)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			metrics.Registrations.WithLabelValues(metrics.OutcomeConflict).Inc()
			return nil, apperror.Conflict("email", MsgDuplicateEmail)
		}
		metrics.Registrations.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("service/registration: storing pending registration: %w", err)
	}

	metrics.Registrations.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.logger.Info("registration staged",
		slog.String("email", pending.Email),
		slog.Time("expiresAt", pending.ExpiresAt),
	)

	result := &RegisterResult{Email: pending.Email}
	if err := s.sendActivation(ctx, pending); err != nil {
		result.Warning = MsgNotificationFailed
	}
	return result, nil
}

// ResendActivation mails the activation link again for a live pending
// registration. It answers the same way whether or not one exists, so it
// cannot be used to probe which emails are registered.
func (s *RegistrationService) ResendActivation(ctx context.Context, clientKey, email string) error {
	if err := s.limiter.Allow(ctx, "resend:"+clientKey); err != nil {
		return err
	}

	email = model.NormalizeEmail(email)
	err := validation.Validate(email,
		validation.Required.Error("This field is required."),
		is.Email.Error("Enter a valid email address."),
	)
	if err != nil {
		return apperror.ValidationFailed("email", err.Error())
	}

	pending, err := s.store.Pending().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("service/registration: looking up pending registration: %w", err)
	}
	if pending.IsExpired(s.now()) {
		return nil
	}

	// Delivery failures are logged by sendActivation; the answer stays the same.
	_ = s.sendActivation(ctx, pending)
	return nil
}

func (s *RegistrationService) sendActivation(ctx context.Context, p *model.PendingRegistration) error {
	link := s.links.ActivationLink(p.Token.String())
	if err := s.dispatcher.Send(ctx, notify.ActivationMessage(p.Email, link)); err != nil {
		metrics.NotificationFailures.Inc()
		s.logger.Warn("activation email not delivered",
			slog.String("email", p.Email),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// validate checks the payload shape first, then the password policy, and
// reports every failing field at once.
func (s *RegistrationService) validate(in RegisterInput) error {
	fields, err := fieldErrors(validation.ValidateStruct(&in,
		validation.Field(&in.Email,
			validation.Required.Error("This field is required."),
			validation.Length(0, MaxEmailLength).Error(fmt.Sprintf("Ensure this field has no more than %d characters.", MaxEmailLength)),
			is.Email.Error("Enter a valid email address."),
		),
		validation.Field(&in.FirstName,
			validation.RuneLength(0, MaxNameLength).Error(fmt.Sprintf("Ensure this field has no more than %d characters.", MaxNameLength)),
		),
		validation.Field(&in.LastName,
			validation.RuneLength(0, MaxNameLength).Error(fmt.Sprintf("Ensure this field has no more than %d characters.", MaxNameLength)),
		),
	))
	if err != nil {
		return fmt.Errorf("service/registration: validating input: %w", err)
	}
	if fields == nil {
		fields = map[string][]string{}
	}

	switch {
	case in.Password == "" || in.ConfirmPassword == "":
		fields["password"] = append(fields["password"], MsgPasswordsRequired)
	case in.Password != in.ConfirmPassword:
		fields["confirm_password"] = append(fields["confirm_password"], MsgPasswordMismatch)
	default:
		violations := s.policy.Check(in.Password, map[string]string{
			"email":      in.Email,
			"first name": in.FirstName,
			"last name":  in.LastName,
		})
		if len(violations) > 0 {
			fields["password"] = append(fields["password"], violations...)
		}
	}

	return validationError(fields)
}

// emailTaken reports whether email is used by an account or a pending
// registration. Callers run it inside the transaction that inserts.
//
// Pending is read before users. Activation moves an email from pending to
// users in one commit, and under READ COMMITTED each statement sees a new
// snapshot: in this order an email being activated concurrently is seen in
// one table or the other, never in neither.
func emailTaken(ctx context.Context, repos repository.Repositories, email string) (bool, error) {
	exists, err := repos.Pending().EmailExists(ctx, email)
	if err != nil || exists {
		return exists, err
	}
	return repos.Users().EmailExists(ctx, email)
}
