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

// compile-time check that *pendingStore implements repository.PendingRepository
var _ repository.PendingRepository = (*pendingStore)(nil)

const pendingColumns = `id, email, password_hash, first_name, last_name,
	token, created_at, expires_at`

type pendingStore struct {
	q      DBTX
	driver string
}

func scanPending(row rowScanner) (*model.PendingRegistration, error) {
	var p model.PendingRegistration
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&p.FirstName,
		&p.LastName,
		&p.Token,
		&p.CreatedAt,
		&p.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.ExpiresAt = p.ExpiresAt.UTC()
	return &p, nil
}

// Create inserts the pending registration. ID and Token are generated when
// unset. A duplicate email (or token) is reported as apperror.ErrConflict.
func (s *pendingStore) Create(ctx context.Context, p *model.PendingRegistration) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Token == uuid.Nil {
		p.Token = uuid.New()
	}

	_, err := s.q.ExecContext(ctx, rebind(s.driver,
		`INSERT INTO pending_registrations (`+pendingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID,
		p.Email,
		p.PasswordHash,
		p.FirstName,
		p.LastName,
		p.Token,
		p.CreatedAt.UTC(),
		p.ExpiresAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email", fmt.Sprintf("registration for %s is already pending", p.Email))
		}
		return fmt.Errorf("sqlstore: inserting pending registration %s: %w", p.Email, err)
	}
	return nil
}

func (s *pendingStore) GetByToken(ctx context.Context, token uuid.UUID) (*model.PendingRegistration, error) {
	row := s.q.QueryRowContext(ctx, rebind(s.driver,
		`SELECT `+pendingColumns+` FROM pending_registrations WHERE token = ?`), token)

	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("pending registration", token.String())
		}
		return nil, fmt.Errorf("sqlstore: getting pending registration by token: %w", err)
	}
	return p, nil
}

func (s *pendingStore) GetByEmail(ctx context.Context, email string) (*model.PendingRegistration, error) {
	row := s.q.QueryRowContext(ctx, rebind(s.driver,
		`SELECT `+pendingColumns+` FROM pending_registrations WHERE email = ?`), email)

	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("pending registration", email)
		}
		return nil, fmt.Errorf("sqlstore: getting pending registration by email: %w", err)
	}
	return p, nil
}

func (s *pendingStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, rebind(s.driver,
		`SELECT COUNT(*) FROM pending_registrations WHERE email = ?`), email).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking pending email: %w", err)
	}
	return n > 0, nil
}

// Delete removes the registration. Deleting a row that is already gone is
// not an error; the bool reports whether this call removed it.
func (s *pendingStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.q.ExecContext(ctx, rebind(s.driver,
		`DELETE FROM pending_registrations WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("sqlstore: deleting pending registration %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired removes registrations with expires_at < now in batches.
func (s *pendingStore) DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	batch := batchOrDefault(batchSize)
	query := rebind(s.driver,
		`DELETE FROM pending_registrations WHERE id IN (
			SELECT id FROM pending_registrations WHERE expires_at < ? LIMIT ?
		)`)

	var total int64
	for {
		res, err := s.q.ExecContext(ctx, query, now.UTC(), batch)
		if err != nil {
			return total, fmt.Errorf("sqlstore: deleting expired registrations: %w", err)
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
