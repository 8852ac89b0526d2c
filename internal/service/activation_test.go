package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/accounts/internal/apperror"
)

// registerAndToken registers email through the registration service and
// returns the verification token of the resulting pending row.
func registerAndToken(t *testing.T, f *registrationFixture, email string) string {
	t.Helper()
	_, err := f.svc.Register(context.Background(), "ip:"+email, validInput(email))
	require.NoError(t, err)
	p, err := f.store.Pending().GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return p.Token.String()
}

func TestActivate_PromotesPendingRegistration(t *testing.T) {
	f := newRegistrationFixture(t, 5)
	token := registerAndToken(t, f, "ada@example.com")
	pending, err := f.store.Pending().GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)

	svc := NewActivationService(f.store, testLogger())
	res, err := svc.Activate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", res.Email)

	assert.Empty(t, f.store.pending, "pending row consumed")
	require.Len(t, f.store.users, 1)
	for id, u := range f.store.users {
		assert.Equal(t, "ada@example.com", u.Email)
		assert.True(t, u.IsActive)
		assert.False(t, u.IsStaff)
		assert.Equal(t, "Ada", u.FirstName)
		assert.Equal(t, "Lovelace", u.LastName)
		assert.Equal(t, pending.PasswordHash, u.PasswordHash, "hash copied verbatim")
		assert.Nil(t, u.LastLogin)
		assert.Contains(t, f.store.profiles, id, "profile created")
	}
}

func TestActivate_ReplayIsInvalid(t *testing.T) {
	f := newRegistrationFixture(t, 5)
	token := registerAndToken(t, f, "ada@example.com")
	svc := NewActivationService(f.store, testLogger())

	_, err := svc.Activate(context.Background(), token)
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), token)
	require.ErrorIs(t, err, apperror.ErrInvalidToken)
	assert.Len(t, f.store.users, 1)
}

func TestActivate_InvalidTokens(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"unknown uuid", uuid.NewString()},
		{"not a uuid", "definitely-not-a-token"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewActivationService(newMemStore(), testLogger())
			_, err := svc.Activate(context.Background(), tt.token)
			require.ErrorIs(t, err, apperror.ErrInvalidToken)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, MsgInvalidActivation, appErr.Message)
		})
	}
}

func TestActivate_Expired(t *testing.T) {
	f := newRegistrationFixture(t, 5)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now, _ = fixedClock(start)
	token := registerAndToken(t, f, "ada@example.com")

	svc := NewActivationService(f.store, testLogger())
	svc.now, _ = fixedClock(start.Add(DefaultPendingTTL + time.Second))

	_, err := svc.Activate(context.Background(), token)
	require.ErrorIs(t, err, apperror.ErrExpired)
	assert.Empty(t, f.store.users, "no user for an expired token")
	assert.Len(t, f.store.pending, 1, "expired row left for the reaper")
}

func TestActivate_ExactExpiryIsStillLive(t *testing.T) {
	f := newRegistrationFixture(t, 5)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now, _ = fixedClock(start)
	token := registerAndToken(t, f, "ada@example.com")

	svc := NewActivationService(f.store, testLogger())
	svc.now, _ = fixedClock(start.Add(DefaultPendingTTL))

	_, err := svc.Activate(context.Background(), token)
	require.NoError(t, err)
}

func TestActivate_FailedPromotionRollsBack(t *testing.T) {
	f := newRegistrationFixture(t, 5)
	token := registerAndToken(t, f, "ada@example.com")
	f.store.createUserErr = errBoom

	svc := NewActivationService(f.store, testLogger())
	_, err := svc.Activate(context.Background(), token)
	require.ErrorIs(t, err, errBoom)

	assert.Empty(t, f.store.users)
	assert.Len(t, f.store.pending, 1, "pending row survives a failed promotion")
}

func TestActivate_LostDeleteRaceIsInvalid(t *testing.T) {
	f := newRegistrationFixture(t, 5)
	token := registerAndToken(t, f, "ada@example.com")
	f.store.deleteMisses = true

	svc := NewActivationService(f.store, testLogger())
	_, err := svc.Activate(context.Background(), token)
	require.ErrorIs(t, err, apperror.ErrInvalidToken)
	assert.Empty(t, f.store.users, "user insert rolled back")
	assert.Empty(t, f.store.profiles)
}

func TestActivate_UserConflictIsInvalid(t *testing.T) {
	f := newRegistrationFixture(t, 5)
	token := registerAndToken(t, f, "ada@example.com")
	f.store.createUserErr = apperror.Conflict("email", "user with email ada@example.com already exists")

	svc := NewActivationService(f.store, testLogger())
	_, err := svc.Activate(context.Background(), token)
	require.ErrorIs(t, err, apperror.ErrInvalidToken)
}
