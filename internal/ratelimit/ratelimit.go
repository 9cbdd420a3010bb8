// Package ratelimit enforces slow mode: a minimum interval between accepted
// messages per user per room. The check-and-claim must be atomic — two
// concurrent attempts by the same user can never both pass.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultWindow is the slow-mode interval applied when none is configured.
const DefaultWindow = 3 * time.Second

// TooSoonError is the expected rejection when a user sends inside the window.
type TooSoonError struct {
	RetryAfter time.Duration
}

func (e *TooSoonError) Error() string {
	return fmt.Sprintf("slow mode: retry in %s", e.RetryAfter.Round(time.Millisecond))
}

// Limiter claims one send slot per invocation. A nil return means the slot
// was claimed and the caller may proceed; *TooSoonError means the previous
// slot is still within the window.
type Limiter interface {
	TryAcquire(ctx context.Context, roomID, uid string) error
}

// slowModeStore is the slice of the sqlite store the limiter needs.
type slowModeStore interface {
	TryAcquireSlowMode(ctx context.Context, roomID, uid string, window time.Duration, now time.Time) (time.Duration, bool, error)
}

// StoreLimiter backs the limiter with the store's atomic conditional
// upsert, so racing sends from multiple devices on one account are
// serialised by the database.
type StoreLimiter struct {
	store  slowModeStore
	window time.Duration
	now    func() time.Time
}

// NewStoreLimiter builds a store-backed limiter. window <= 0 selects
// DefaultWindow.
func NewStoreLimiter(store slowModeStore, window time.Duration) *StoreLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &StoreLimiter{store: store, window: window, now: time.Now}
}

// TryAcquire implements Limiter.
func (l *StoreLimiter) TryAcquire(ctx context.Context, roomID, uid string) error {
	retry, ok, err := l.store.TryAcquireSlowMode(ctx, roomID, uid, l.window, l.now())
	if err != nil {
		return fmt.Errorf("slow mode check: %w", err)
	}
	if !ok {
		return &TooSoonError{RetryAfter: retry}
	}
	return nil
}

// pruneThreshold is the map size past which an acquire sweeps out expired
// entries, keeping long-running store-less embeddings bounded.
const pruneThreshold = 1024

// MemoryLimiter is a mutex-guarded in-process limiter with the same
// semantics as StoreLimiter. It serves tests and store-less embedding.
type MemoryLimiter struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

// NewMemoryLimiter builds an in-memory limiter. window <= 0 selects
// DefaultWindow.
func NewMemoryLimiter(window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		last:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// TryAcquire implements Limiter. The read-check-write runs under one lock
// acquisition, so it is indivisible with respect to concurrent callers.
func (l *MemoryLimiter) TryAcquire(_ context.Context, roomID, uid string) error {
	key := roomID + "\x00" + uid

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[key]; ok {
		if elapsed := now.Sub(last); elapsed < l.window {
			return &TooSoonError{RetryAfter: l.window - elapsed}
		}
	}
	l.last[key] = now

	// Entries past their window are semantically absent (any acquire on them
	// succeeds), so sweeping them once the map grows is invisible to callers.
	if len(l.last) > pruneThreshold {
		for k, ts := range l.last {
			if now.Sub(ts) >= l.window {
				delete(l.last, k)
			}
		}
	}
	return nil
}
