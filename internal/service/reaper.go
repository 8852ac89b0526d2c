package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/accounts/internal/metrics"
	"github.com/sakif/accounts/internal/repository"
)

// Reaper kinds, used as the metrics label and in logs.
const (
	ReapPending = "pending"
	ReapStale   = "stale"
)

const DefaultInactiveAfter = 30 * 24 * time.Hour

// Reaper deletes expired pending registrations and accounts that were
// never activated. Both sweeps delete in bounded batches and treat rows
// that vanished in the meantime as already handled.
type Reaper struct {
	store         repository.Manager
	inactiveAfter time.Duration
	batchSize     int
	logger        *slog.Logger
}

func NewReaper(store repository.Manager, inactiveAfter time.Duration, batchSize int, logger *slog.Logger) *Reaper {
	if inactiveAfter <= 0 {
		inactiveAfter = DefaultInactiveAfter
	}
	return &Reaper{
		store:         store,
		inactiveAfter: inactiveAfter,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// PurgeExpiredPending deletes pending registrations with expires_at < now.
func (r *Reaper) PurgeExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	n, err := r.store.Pending().DeleteExpired(ctx, now.UTC(), r.batchSize)
	r.record(ReapPending, n, start)
	if err != nil {
		return n, fmt.Errorf("service/reaper: purging expired registrations: %w", err)
	}
	return n, nil
}

// PurgeStaleAccounts deletes inactive users that joined before
// now - inactiveAfter.
func (r *Reaper) PurgeStaleAccounts(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	cutoff := now.UTC().Add(-r.inactiveAfter)
	n, err := r.store.Users().DeleteInactiveBefore(ctx, cutoff, r.batchSize)
	r.record(ReapStale, n, start)
	if err != nil {
		return n, fmt.Errorf("service/reaper: purging stale accounts: %w", err)
	}
	return n, nil
}

// RunOnce runs both sweeps and returns the first error. The second sweep
// runs even if the first failed.
func (r *Reaper) RunOnce(ctx context.Context, now time.Time) error {
	pending, errPending := r.PurgeExpiredPending(ctx, now)
	stale, errStale := r.PurgeStaleAccounts(ctx, now)

	r.logger.Info("reaper sweep finished",
		slog.Int64("pendingDeleted", pending),
		slog.Int64("staleDeleted", stale),
	)

	if errPending != nil {
		return errPending
	}
	return errStale
}

func (r *Reaper) record(kind string, n int64, start time.Time) {
	metrics.ReaperRuns.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if n > 0 {
		metrics.Reaped.WithLabelValues(kind).Add(float64(n))
	}
}
