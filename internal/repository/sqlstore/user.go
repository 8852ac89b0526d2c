package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/repository"
)

// compile-time check that *userStore implements repository.UserRepository
var _ repository.UserRepository = (*userStore)(nil)

const userColumns = `id, email, password_hash, first_name, last_name,
	is_active, is_staff, is_superuser, date_joined, last_login`

type userStore struct {
	q      DBTX
	driver string
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.IsActive,
		&u.IsStaff,
		&u.IsSuperuser,
		&u.DateJoined,
		&lastLogin,
	)
	if err != nil {
		return nil, err
	}
	u.DateJoined = u.DateJoined.UTC()
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLogin = &t
	}
	return &u, nil
}

// Create inserts a user. ID and DateJoined are filled in when unset.
// The email must already be normalized.
func (s *userStore) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now()
	}
	user.DateJoined = user.DateJoined.UTC()

	var lastLogin any
	if user.LastLogin != nil {
		lastLogin = user.LastLogin.UTC()
	}

	_, err := s.q.ExecContext(ctx, rebind(s.driver,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.IsActive,
		user.IsStaff,
		user.IsSuperuser,
		user.DateJoined,
		lastLogin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email", fmt.Sprintf("user with email %s already exists", user.Email))
		}
		return fmt.Errorf("sqlstore: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// GetByID returns apperror.ErrNotFound if no user has that ID.
func (s *userStore) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	row := s.q.QueryRowContext(ctx, rebind(s.driver,
		`SELECT `+userColumns+` FROM users WHERE id = ?`), id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id.String())
		}
		return nil, fmt.Errorf("sqlstore: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetByEmail returns apperror.ErrNotFound if no user has that email.
func (s *userStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.q.QueryRowContext(ctx, rebind(s.driver,
		`SELECT `+userColumns+` FROM users WHERE email = ?`), email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlstore: getting user by email: %w", err)
	}
	return u, nil
}

func (s *userStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, rebind(s.driver,
		`SELECT COUNT(*) FROM users WHERE email = ?`), email).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking user email: %w", err)
	}
	return n > 0, nil
}

func (s *userStore) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.q.ExecContext(ctx, rebind(s.driver,
		`UPDATE users SET last_login = ? WHERE id = ?`), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlstore: updating last_login for %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id.String())
	}
	return nil
}

// DeleteInactiveBefore deletes inactive users whose date_joined is older
// than cutoff. Rows are removed in batches so no single statement holds
// the table for long.
func (s *userStore) DeleteInactiveBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	batch := batchOrDefault(batchSize)
	query := rebind(s.driver,
		`DELETE FROM users WHERE id IN (
			SELECT id FROM users WHERE is_active = ? AND date_joined < ? LIMIT ?
		)`)

	var total int64
	for {
		res, err := s.q.ExecContext(ctx, query, false, cutoff.UTC(), batch)
		if err != nil {
			return total, fmt.Errorf("sqlstore: deleting inactive users: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("sqlstore: checking rows affected: %w", err)
		}
		total += n
		if n < int64(batch) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}
