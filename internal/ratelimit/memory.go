package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter is a process-local Counter for single-instance deployments
// and development, used when no Redis address is configured.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memWindow
	now     func() time.Time
}

type memWindow struct {
	count   int64
	resetAt time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[string]*memWindow),
		now:     time.Now,
	}
}

func (c *MemoryCounter) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memWindow{resetAt: now.Add(window)}
		c.windows[key] = w
		c.sweep(now)
	}
	w.count++
	return w.count, w.resetAt.Sub(now), nil
}

// sweep drops closed windows. It runs only when a new window opens, so the
// map stays bounded by the number of clients active in one window.
func (c *MemoryCounter) sweep(now time.Time) {
	for k, w := range c.windows {
		if !now.Before(w.resetAt) {
			delete(c.windows, k)
		}
	}
}
