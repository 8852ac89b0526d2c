package model

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the optional descriptive data attached 1:1 to a User.
// UserID is both the primary key and the owning reference.
type Profile struct {
	UserID    uuid.UUID  `db:"user_id"`
	Bio       string     `db:"bio"`
	Location  string     `db:"location"`
	BirthDate *time.Time `db:"birth_date"` // date only; time part is always midnight UTC
}
