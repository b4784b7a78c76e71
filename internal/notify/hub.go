// Package notify delivers task events to connected clients and polices who
// may connect. The transport (server-sent events) is deliberately thin; the
// admission rules are the interesting part.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskdesk/internal/audit"
	"taskdesk/internal/platform/metrics"
	"taskdesk/internal/security/attempt"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/requestcontext"
)

// Event is one message pushed to subscribers.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// subscriptionBuffer bounds per-client queueing; a slow client loses events
// rather than blocking the hub.
const subscriptionBuffer = 16

// Subscription is one admitted client connection.
type Subscription struct {
	id     string
	userID string
	ch     chan Event
	hub    *Hub

	closeOnce sync.Once
}

// Events is the stream the transport drains until the client goes away.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close releases the connection slot. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		close(s.ch)
	})
}

type Config struct {
	// MaxPerUser caps concurrent subscriptions per subject.
	MaxPerUser int
	// MaxAttempts and AttemptWindow cap handshakes per client address.
	MaxAttempts   int
	AttemptWindow time.Duration
}

// Hub fans events out to subscriptions and enforces the admission caps.
type Hub struct {
	mu   sync.Mutex
	subs map[string][]*Subscription

	maxPerUser int
	attempts   *attempt.Tracker

	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Recorder
}

type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithAuditRecorder(rec *audit.Recorder) Option {
	return func(h *Hub) { h.audit = rec }
}

func NewHub(cfg Config, opts ...Option) *Hub {
	h := &Hub{
		subs:       make(map[string][]*Subscription),
		maxPerUser: cfg.MaxPerUser,
		attempts: attempt.New(attempt.Config{
			MaxAttempts: cfg.MaxAttempts,
			Window:      cfg.AttemptWindow,
		}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe admits a new connection for userID, or refuses it when the
// address has burned its handshake budget or the subject is already at its
// concurrency cap. Every handshake attempt counts against the address,
// successful or not.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	addr := requestcontext.ClientIP(ctx)

	status := h.attempts.Check(ctx, addr)
	if !status.Allowed {
		h.metrics.IncSocketRejected()
		h.audit.Record(ctx, audit.Event{
			Kind: audit.KindConnectionFlood,
			Details: map[string]any{
				"retry_after": status.RetryAfter,
			},
		})
		return nil, dErrors.New(dErrors.CodeConnectionDenied, "too many connection attempts from this address")
	}
	h.attempts.RecordFailure(ctx, addr)

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.subs[userID]) >= h.maxPerUser {
		h.metrics.IncSocketRejected()
		h.audit.Record(ctx, audit.Event{
			Kind: audit.KindConnectionFlood,
			Details: map[string]any{
				"subject": userID,
				"reason":  "concurrent_cap",
			},
		})
		return nil, dErrors.New(dErrors.CodeConnectionDenied, "concurrent connection limit reached")
	}

	sub := &Subscription{
		id:     uuid.NewString(),
		userID: userID,
		ch:     make(chan Event, subscriptionBuffer),
		hub:    h,
	}
	h.subs[userID] = append(h.subs[userID], sub)

	h.logger.Debug("notify_subscribed", "subject", userID, "subscription_id", sub.id)
	return sub, nil
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.subs[sub.userID]
	for i, s := range list {
		if s.id == sub.id {
			h.subs[sub.userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.subs[sub.userID]) == 0 {
		delete(h.subs, sub.userID)
	}
}

// NotifyUser delivers an event to every subscription of one subject. Full
// client buffers drop the event.
func (h *Hub) NotifyUser(userID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs[userID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Broadcast delivers an event to every connected subscription.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, list := range h.subs {
		for _, sub := range list {
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// ConnectionsFor reports the live subscription count for a subject.
func (h *Hub) ConnectionsFor(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// SweepAttempts evicts stale handshake records; the defense sweeper calls it.
func (h *Hub) SweepAttempts(now time.Time) int {
	return h.attempts.Sweep(now)
}
