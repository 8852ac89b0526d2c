package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/accounts/internal/repository"
)

// DBTX is the subset of database/sql used by the stores.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txRepos binds the three stores to one transaction.
type txRepos struct {
	tx     *sql.Tx
	driver string
}

func (r *txRepos) Users() repository.UserRepository {
	return &userStore{q: r.tx, driver: r.driver}
}

func (r *txRepos) Pending() repository.PendingRepository {
	return &pendingStore{q: r.tx, driver: r.driver}
}

func (r *txRepos) Profiles() repository.ProfileRepository {
	return &profileStore{q: r.tx, driver: r.driver}
}

// RunInTx begins a transaction, runs fn with repositories bound to it and
// commits when fn returns nil. An error or a panic rolls back; panics are
// re-raised after the rollback.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("sqlstore: committing transaction: %w", cerr)
		}
	}()

	err = fn(ctx, &txRepos{tx: tx, driver: db.driver})
	return err
}
