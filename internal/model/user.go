// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an activated, durable account.
//
// Email is always stored lowercase; uniqueness is case-insensitive because
// every write path normalizes through NormalizeEmail first.
//
// PasswordHash is the bcrypt output copied from the pending registration at
// activation time. It is never serialized.
type User struct {
	ID           uuid.UUID  `json:"id"          db:"id"`
	Email        string     `json:"email"       db:"email"`
	PasswordHash string     `json:"-"           db:"password_hash"`
	FirstName    string     `json:"first_name"  db:"first_name"`
	LastName     string     `json:"last_name"   db:"last_name"`
	IsActive     bool       `json:"is_active"   db:"is_active"`
	IsStaff      bool       `json:"is_staff"    db:"is_staff"`
	IsSuperuser  bool       `json:"is_superuser" db:"is_superuser"`
	DateJoined   time.Time  `json:"date_joined" db:"date_joined"`
	LastLogin    *time.Time `json:"last_login"  db:"last_login"` // nil until the first successful login
}

// FullName joins first and last name with a single space, skipping blanks.
func (u *User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// NormalizeEmail trims surrounding whitespace and lowercases the address.
//
// WHY LOWERCASE THE WHOLE ADDRESS?
// Strictly, only the domain part is case-insensitive. In practice no mail
// provider treats "Ada@" and "ada@" as different inboxes, and keeping one
// form lets the unique index on email do the case-insensitive check.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
