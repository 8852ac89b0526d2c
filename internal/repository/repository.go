// Package repository declares the storage contracts the services depend on.
//
// Services only see these interfaces. The sqlstore package implements them
// on top of database/sql; service tests implement them in memory.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/accounts/internal/model"
)

// UserRepository is the credential store for activated accounts.
type UserRepository interface {
	// Create inserts the user. A duplicate email yields apperror.ErrConflict.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail expects an already normalized email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	// DeleteInactiveBefore removes never-activated users that joined before
	// cutoff, at most batchSize rows per statement, and returns the total.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// PendingRepository is the self-expiring staging area for signups.
type PendingRepository interface {
	// Create inserts the registration. A second pending registration for the
	// same email yields apperror.ErrConflict; callers check the user table
	// themselves, inside the same transaction.
	Create(ctx context.Context, p *model.PendingRegistration) error
	GetByToken(ctx context.Context, token uuid.UUID) (*model.PendingRegistration, error)
	GetByEmail(ctx context.Context, email string) (*model.PendingRegistration, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// Delete removes the row and reports whether it existed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type ProfileRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	// Ensure creates an empty profile if none exists. It never overwrites.
	Ensure(ctx context.Context, userID uuid.UUID) error
	Upsert(ctx context.Context, p *model.Profile) error
}

// Repositories groups the stores bound to one connection or transaction.
type Repositories interface {
	Users() UserRepository
	Pending() PendingRepository
	Profiles() ProfileRepository
}

// Manager hands out repositories and runs units of work atomically.
//
// Inside fn only the Repositories passed in may be used; they are bound to
// the transaction. fn returning an error (or panicking) rolls back.
//
// WHY A CALLBACK INSTEAD OF Begin/Commit?
// Activation inserts a user and deletes the pending row. If a service had
// to remember Rollback on every early return, one forgotten path would
// leave both rows (or neither). With RunInTx the commit/rollback decision
// lives in one place, and services only return errors.
type Manager interface {
	Repositories
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Ping(ctx context.Context) error
}
