package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/notify"
	"github.com/sakif/accounts/internal/ratelimit"
	"github.com/sakif/accounts/internal/repository"
)

// =========================================================================
// IN-MEMORY STORE
// =========================================================================

// memStore is an in-memory repository.Manager. RunInTx snapshots the maps
// and restores them when fn fails, which is enough to observe rollbacks.
type memStore struct {
	users    map[uuid.UUID]*model.User
	pending  map[uuid.UUID]*model.PendingRegistration
	profiles map[uuid.UUID]*model.Profile

	// set to simulate failures
	createUserErr    error
	pendingCreateErr error
	deleteMisses     bool // Pending().Delete reports that nothing was removed
	touchErr         error
	pingErr          error

	// afterEmailLookup runs after every EmailExists call with the table
	// name, so a test can commit a concurrent change between two reads.
	afterEmailLookup func(table string)
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[uuid.UUID]*model.User),
		pending:  make(map[uuid.UUID]*model.PendingRegistration),
		profiles: make(map[uuid.UUID]*model.Profile),
	}
}

func (m *memStore) Users() repository.UserRepository       { return memUsers{m} }
func (m *memStore) Pending() repository.PendingRepository  { return memPending{m} }
func (m *memStore) Profiles() repository.ProfileRepository { return memProfiles{m} }
func (m *memStore) Ping(context.Context) error             { return m.pingErr }

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	users, pending, profiles := maps.Clone(m.users), maps.Clone(m.pending), maps.Clone(m.profiles)
	if err := fn(ctx, m); err != nil {
		m.users, m.pending, m.profiles = users, pending, profiles
		return err
	}
	return nil
}

type memUsers struct{ m *memStore }

func (r memUsers) Create(_ context.Context, u *model.User) error {
	if r.m.createUserErr != nil {
		return r.m.createUserErr
	}
	for _, existing := range r.m.users {
		if existing.Email == u.Email {
			return apperror.Conflict("email", "user with email "+u.Email+" already exists")
		}
	}
	cp := *u
	r.m.users[u.ID] = &cp
	return nil
}

func (r memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := r.m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id.String())
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range r.m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (r memUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if r.m.afterEmailLookup != nil {
		r.m.afterEmailLookup("users")
	}
	return err == nil, nil
}

func (r memUsers) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	if r.m.touchErr != nil {
		return r.m.touchErr
	}
	if u, ok := r.m.users[id]; ok {
		t := at
		u.LastLogin = &t
	}
	return nil
}

func (r memUsers) DeleteInactiveBefore(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	var n int64
	for id, u := range r.m.users {
		if !u.IsActive && u.DateJoined.Before(cutoff) {
			delete(r.m.users, id)
			delete(r.m.profiles, id)
			n++
		}
	}
	return n, nil
}

type memPending struct{ m *memStore }

func (r memPending) Create(_ context.Context, p *model.PendingRegistration) error {
	if r.m.pendingCreateErr != nil {
		return r.m.pendingCreateErr
	}
	for _, existing := range r.m.pending {
		if existing.Email == p.Email {
			return apperror.Conflict("email", "registration for "+p.Email+" is already pending")
		}
	}
	cp := *p
	r.m.pending[p.ID] = &cp
	return nil
}

func (r memPending) GetByToken(_ context.Context, token uuid.UUID) (*model.PendingRegistration, error) {
	for _, p := range r.m.pending {
		if p.Token == token {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("pending registration", token.String())
}

func (r memPending) GetByEmail(_ context.Context, email string) (*model.PendingRegistration, error) {
	for _, p := range r.m.pending {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("pending registration", email)
}

func (r memPending) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if r.m.afterEmailLookup != nil {
		r.m.afterEmailLookup("pending")
	}
	return err == nil, nil
}

func (r memPending) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	if r.m.deleteMisses {
		return false, nil
	}
	_, ok := r.m.pending[id]
	delete(r.m.pending, id)
	return ok, nil
}

func (r memPending) DeleteExpired(_ context.Context, now time.Time, _ int) (int64, error) {
	var n int64
	for id, p := range r.m.pending {
		if p.ExpiresAt.Before(now) {
			delete(r.m.pending, id)
			n++
		}
	}
	return n, nil
}

type memProfiles struct{ m *memStore }

func (r memProfiles) Get(_ context.Context, userID uuid.UUID) (*model.Profile, error) {
	p, ok := r.m.profiles[userID]
	if !ok {
		return nil, apperror.NotFound("profile", userID.String())
	}
	cp := *p
	return &cp, nil
}

func (r memProfiles) Ensure(_ context.Context, userID uuid.UUID) error {
	if _, ok := r.m.profiles[userID]; !ok {
		r.m.profiles[userID] = &model.Profile{UserID: userID}
	}
	return nil
}

func (r memProfiles) Upsert(_ context.Context, p *model.Profile) error {
	cp := *p
	r.m.profiles[p.UserID] = &cp
	return nil
}

// =========================================================================
// OTHER FAKES AND HELPERS
// =========================================================================

// fakeDispatcher records every message and fails when err is set.
type fakeDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (d *fakeDispatcher) Send(_ context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, msg)
	return nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

var errBoom = errors.New("database is on fire")

const testSecret = "test-secret-at-least-16-chars!!"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fixedClock returns a Clock frozen at t and a setter to move it.
func fixedClock(t time.Time) (Clock, func(time.Time)) {
	now := t
	return func() time.Time { return now }, func(n time.Time) { now = n }
}

// Cost 4 is the bcrypt minimum and keeps the tests fast.
var testPasswords = auth.NewPasswordServiceForTest(4)

type registrationFixture struct {
	store      *memStore
	dispatcher *fakeDispatcher
	svc        *RegistrationService
}

func newRegistrationFixture(t *testing.T, limit int) *registrationFixture {
	t.Helper()
	store := newMemStore()
	dispatcher := &fakeDispatcher{}
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), "register", limit, time.Minute, testLogger())
	svc := NewRegistrationService(
		store,
		testPasswords,
		auth.NewPasswordPolicy(8),
		limiter,
		dispatcher,
		notify.LinkBuilder{Protocol: "https", Domain: "accounts.example.com"},
		DefaultPendingTTL,
		testLogger(),
	)
	return &registrationFixture{store: store, dispatcher: dispatcher, svc: svc}
}

func validInput(email string) RegisterInput {
	return RegisterInput{
		Email:           email,
		Password:        "Str0ng-Passphrase!",
		ConfirmPassword: "Str0ng-Passphrase!",
		FirstName:       "Ada",
		LastName:        "Lovelace",
	}
}

// seedUser stores an account with the given password hashed at test cost.
func seedUser(t *testing.T, store *memStore, email, password string, active bool) *model.User {
	t.Helper()
	hash, err := testPasswords.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	u := &model.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     active,
		DateJoined:   time.Now().UTC(),
	}
	store.users[u.ID] = u
	return u
}
