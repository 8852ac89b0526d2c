package model

import (
	"time"

	"github.com/google/uuid"
)

// PendingRegistration holds a signup that has not been confirmed yet.
//
// It is written once by registration and never updated: activation reads
// and deletes it in one transaction, the reaper deletes it once ExpiresAt
// has passed. Token is the only handle a client ever gets.
type PendingRegistration struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	Token        uuid.UUID `db:"token"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// IsExpired reports whether the registration can no longer be activated.
// A registration whose ExpiresAt equals now is still live.
func (p *PendingRegistration) IsExpired(now time.Time) bool {
	return p.ExpiresAt.Before(now)
}
