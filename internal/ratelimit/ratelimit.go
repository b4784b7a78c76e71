// Package ratelimit implements fixed-window request counters producing
// allow/delay/reject decisions per client identity. Each window anchors to its
// first request; a soft cap degrades service with a fixed added delay before
// the hard cap rejects outright, throttling scripted abuse without breaking
// legitimate bursts.
package ratelimit

import (
	"context"
	"net"
	"sync"
	"time"

	"taskdesk/pkg/requestcontext"
)

// Kind is the outcome category of an admission decision.
type Kind int

const (
	KindAllow Kind = iota
	KindDelay
	KindReject
)

// Decision is the typed outcome of Admit. The pipeline interprets it; the
// controller never writes HTTP responses itself.
type Decision struct {
	Kind       Kind
	Delay      time.Duration // set when Kind == KindDelay
	RetryAfter int           // seconds, set when Kind == KindReject
	Limit      int
	Remaining  int
	ResetAt    time.Time
}

// Config sets the thresholds for one controller instance. SoftCap <= 0
// disables the delay policy (the auth limiter has no soft cap). TrustedCIDRs
// exempts matching addresses entirely; only the general limiter sets it.
type Config struct {
	SoftCap      int
	HardCap      int
	Window       time.Duration
	SoftCapDelay time.Duration
	TrustedCIDRs []string
}

type window struct {
	count    int
	start    time.Time
	lastSeen time.Time
}

// Controller owns one shared table of fixed windows keyed by client identity.
// Mutation is serialized under a single mutex; the critical section is a
// short in-memory read-modify-write.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	windows map[string]*window
	trusted []*net.IPNet
}

func New(cfg Config) *Controller {
	c := &Controller{
		cfg:     cfg,
		windows: make(map[string]*window),
	}
	for _, cidr := range cfg.TrustedCIDRs {
		if _, ipnet, err := net.ParseCIDR(cidr); err == nil {
			c.trusted = append(c.trusted, ipnet)
		}
	}
	return c
}

// Exempt reports whether the address falls in a trusted network range and
// bypasses this controller entirely.
func (c *Controller) Exempt(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, ipnet := range c.trusted {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// Admit charges one request against the identity's window and returns the
// resulting decision. Counter increments are never rolled back on client
// disconnect; over-throttling is the fail-safe bias.
func (c *Controller) Admit(ctx context.Context, identity string) Decision {
	now := requestcontext.Now(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[identity]
	if !ok || now.Sub(w.start) > c.cfg.Window {
		w = &window{start: now}
		c.windows[identity] = w
	}
	w.count++
	w.lastSeen = now

	resetAt := w.start.Add(c.cfg.Window)
	remaining := c.cfg.HardCap - w.count
	if remaining < 0 {
		remaining = 0
	}

	if w.count > c.cfg.HardCap {
		retryAfter := int(resetAt.Sub(now).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Decision{
			Kind:       KindReject,
			RetryAfter: retryAfter,
			Limit:      c.cfg.HardCap,
			Remaining:  0,
			ResetAt:    resetAt,
		}
	}

	if c.cfg.SoftCap > 0 && w.count > c.cfg.SoftCap {
		return Decision{
			Kind:      KindDelay,
			Delay:     c.cfg.SoftCapDelay,
			Limit:     c.cfg.HardCap,
			Remaining: remaining,
			ResetAt:   resetAt,
		}
	}

	return Decision{
		Kind:      KindAllow,
		Limit:     c.cfg.HardCap,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Forgive refunds one previously admitted request. The auth limiter calls it
// after a successful authentication so only failures count against the window.
func (c *Controller) Forgive(ctx context.Context, identity string) {
	now := requestcontext.Now(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[identity]
	if !ok || now.Sub(w.start) > c.cfg.Window {
		return
	}
	if w.count > 0 {
		w.count--
	}
}

// Sweep evicts windows idle beyond twice the window duration and returns how
// many were removed.
func (c *Controller) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, w := range c.windows {
		if now.Sub(w.lastSeen) > 2*c.cfg.Window {
			delete(c.windows, key)
			evicted++
		}
	}
	return evicted
}

// Len reports the current number of tracked identities.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}
