// Package ratelimit implements fixed-window request caps per client.
//
// A Counter stores the hits; the Limiter turns a count into a decision.
// Keys have the shape "<scope>:<client>", e.g. "register:ip:203.0.113.7".
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/accounts/internal/apperror"
)

// Counter is an atomic increment-and-read store for rate windows.
type Counter interface {
	// Increment adds one hit to key. The first hit opens a window of the
	// given length; the returned duration is the time left in it.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// Limiter caps the number of requests a client may make per window.
type Limiter struct {
	counter Counter
	scope   string
	limit   int64
	window  time.Duration
	logger  *slog.Logger
}

// NewLimiter builds a limiter allowing limit requests per window for each
// client within scope.
func NewLimiter(counter Counter, scope string, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		counter: counter,
		scope:   scope,
		limit:   int64(limit),
		window:  window,
		logger:  logger,
	}
}

// Allow records a request by clientKey. It returns an apperror.Throttled
// once the client has gone over the limit for the current window.
//
// If the counter store is unreachable the request is let through and the
// failure is logged.
func (l *Limiter) Allow(ctx context.Context, clientKey string) error {
	count, remaining, err := l.counter.Increment(ctx, l.scope+":"+clientKey, l.window)
	if err != nil {
		l.logger.Warn("rate counter unavailable, allowing request",
			slog.String("scope", l.scope),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if count > l.limit {
		if remaining <= 0 {
			remaining = l.window
		}
		return apperror.Throttled(remaining)
	}
	return nil
}
