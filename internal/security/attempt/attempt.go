// Package attempt provides a generic keyed failure counter with time-windowed
// reset and eviction. It backs both brute-force protection on auth routes and
// connection-attempt throttling on the real-time channel; window duration and
// budget are configured per use site.
//
// The window is fixed and anchors to the FIRST failure: failures inside the
// window never extend it, so a lockout always lasts a predictable duration
// from the first offending attempt.
package attempt

import (
	"context"
	"sync"
	"time"

	"taskdesk/pkg/requestcontext"
)

// Config sets the failure budget and window for one tracker instance.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// Status is the outcome of a Check call.
type Status struct {
	Allowed    bool
	Remaining  int       // failures left before the key is blocked
	RetryAfter int       // seconds until the window resets, only set when blocked
	ResetAt    time.Time // zero when no record exists
}

type record struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// Tracker owns one shared table of attempt records. All mutation happens under
// a single mutex; the critical sections are short, synchronous, in-memory
// operations so nothing suspends while holding the lock.
type Tracker struct {
	mu      sync.Mutex
	cfg     Config
	records map[string]*record
}

func New(cfg Config) *Tracker {
	return &Tracker{
		cfg:     cfg,
		records: make(map[string]*record),
	}
}

// Check reports whether the key is still within its failure budget. An absent
// or expired record counts as a fresh window with the full budget.
func (t *Tracker) Check(ctx context.Context, key string) Status {
	now := requestcontext.Now(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok {
		return Status{Allowed: true, Remaining: t.cfg.MaxAttempts}
	}

	if now.Sub(rec.windowStart) > t.cfg.Window {
		// Window elapsed: treat as fresh. The stale count is reset here
		// rather than waiting for the sweeper.
		rec.count = 0
		rec.windowStart = now
		rec.lastSeen = now
		return Status{Allowed: true, Remaining: t.cfg.MaxAttempts, ResetAt: now.Add(t.cfg.Window)}
	}

	resetAt := rec.windowStart.Add(t.cfg.Window)
	if rec.count >= t.cfg.MaxAttempts {
		retryAfter := int(resetAt.Sub(now).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Status{Allowed: false, Remaining: 0, RetryAfter: retryAfter, ResetAt: resetAt}
	}

	return Status{Allowed: true, Remaining: t.cfg.MaxAttempts - rec.count, ResetAt: resetAt}
}

// RecordFailure charges one failure against the key. The window anchor is set
// only when the record is new or expired; failures within the window do not
// move it.
func (t *Tracker) RecordFailure(ctx context.Context, key string) {
	now := requestcontext.Now(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok || now.Sub(rec.windowStart) > t.cfg.Window {
		t.records[key] = &record{count: 1, windowStart: now, lastSeen: now}
		return
	}
	rec.count++
	rec.lastSeen = now
}

// RecordSuccess clears the key's record entirely, so a later failure starts a
// fresh count of one.
func (t *Tracker) RecordSuccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, key)
}

// Sweep evicts records idle beyond twice the window and returns how many were
// removed. Bounds table memory to the active-abuser count.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for key, rec := range t.records {
		if now.Sub(rec.lastSeen) > 2*t.cfg.Window {
			delete(t.records, key)
			evicted++
		}
	}
	return evicted
}

// Len reports the current number of tracked keys.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
