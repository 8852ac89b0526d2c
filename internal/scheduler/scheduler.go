// Package scheduler runs periodic background jobs outside the request path.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is one unit of periodic work. now is the tick time in UTC.
type Job func(ctx context.Context, now time.Time) error

// Runner invokes a Job on a fixed interval until its context is cancelled.
type Runner struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	job      Job
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner creates a runner. Each run gets its own deadline of timeout;
// a timeout of 0 uses the interval.
func NewRunner(name string, interval, timeout time.Duration, job Job, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = interval
	}
	return &Runner{
		name:     name,
		interval: interval,
		timeout:  timeout,
		job:      job,
		logger:   logger,
		now:      time.Now,
	}
}

// Run runs the job once immediately, then on every tick. It blocks until
// ctx is done. A failing run is logged and the loop carries on.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("scheduler started",
		slog.String("job", r.name),
		slog.String("interval", r.interval.String()),
	)

	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("scheduler stopping", slog.String("job", r.name))
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := r.now()
	if err := r.job(runCtx, start.UTC()); err != nil {
		r.logger.Error("scheduled job failed",
			slog.String("job", r.name),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.Debug("scheduled job finished",
		slog.String("job", r.name),
		slog.Duration("duration", time.Since(start)),
	)
}
