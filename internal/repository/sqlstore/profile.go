package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/repository"
)

// compile-time check that *profileStore implements repository.ProfileRepository
var _ repository.ProfileRepository = (*profileStore)(nil)

type profileStore struct {
	q      DBTX
	driver string
}

func (s *profileStore) Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	var (
		p         model.Profile
		birthDate sql.NullTime
	)
	err := s.q.QueryRowContext(ctx, rebind(s.driver,
		`SELECT user_id, bio, location, birth_date FROM profiles WHERE user_id = ?`), userID,
	).Scan(&p.UserID, &p.Bio, &p.Location, &birthDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", userID.String())
		}
		return nil, fmt.Errorf("sqlstore: getting profile %s: %w", userID, err)
	}
	if birthDate.Valid {
		d := birthDate.Time.UTC()
		p.BirthDate = &d
	}
	return &p, nil
}

// Ensure inserts an empty profile and leaves an existing one untouched.
func (s *profileStore) Ensure(ctx context.Context, userID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, rebind(s.driver,
		`INSERT INTO profiles (user_id) VALUES (?)
		 ON CONFLICT (user_id) DO NOTHING`), userID)
	if err != nil {
		return fmt.Errorf("sqlstore: ensuring profile %s: %w", userID, err)
	}
	return nil
}

func (s *profileStore) Upsert(ctx context.Context, p *model.Profile) error {
	var birthDate any
	if p.BirthDate != nil {
		birthDate = p.BirthDate.UTC()
	}

	_, err := s.q.ExecContext(ctx, rebind(s.driver,
		`INSERT INTO profiles (user_id, bio, location, birth_date) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			bio = excluded.bio,
			location = excluded.location,
			birth_date = excluded.birth_date`),
		p.UserID, p.Bio, p.Location, birthDate,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: upserting profile %s: %w", p.UserID, err)
	}
	return nil
}
