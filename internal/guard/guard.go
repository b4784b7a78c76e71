// Package guard implements the ordered request defense pipeline. Every
// protected request passes through the same fixed sequence of checks; the
// first guard that refuses the request short-circuits the rest.
package guard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"taskdesk/internal/auth"
	"taskdesk/internal/platform/metrics"
	"taskdesk/internal/transport/http/json"
	"taskdesk/internal/transport/http/shared"
)

// Verdict is the outcome class of a single guard check.
type Verdict int

const (
	VerdictAllow Verdict = iota
	// VerdictDelay lets the request proceed after an artificial pause.
	VerdictDelay
	VerdictReject
)

// Decision carries everything the pipeline driver needs to act on a verdict.
// Guards never write to the ResponseWriter themselves.
type Decision struct {
	Verdict Verdict
	Delay   time.Duration

	Status  int
	Code    string
	Message string
	Field   string

	// Headers are applied to the response whatever the verdict.
	Headers map[string]string
}

func allow() Decision {
	return Decision{Verdict: VerdictAllow}
}

func delay(d time.Duration) Decision {
	return Decision{Verdict: VerdictDelay, Delay: d}
}

func reject(status int, code, message string) Decision {
	return Decision{Verdict: VerdictReject, Status: status, Code: code, Message: message}
}

// Guard is one stage of the pipeline. Check may derive a new request (to
// attach context values) but must not touch the response.
type Guard interface {
	Name() string
	Check(w http.ResponseWriter, r *http.Request) (*http.Request, Decision)
}

type ctxKey int

const (
	bodyFieldsKey ctxKey = iota
	claimsKey
)

// BodyFields returns the sanitized JSON body fields attached by the sanitize
// stage, or nil when the request had no JSON object body.
func BodyFields(ctx context.Context) map[string]any {
	if m, ok := ctx.Value(bodyFieldsKey).(map[string]any); ok {
		return m
	}
	return nil
}

// Claims returns the verified token claims attached by the authentication
// stage. It is nil on routes without an authenticate guard.
func Claims(ctx context.Context) *auth.AccessClaims {
	if c, ok := ctx.Value(claimsKey).(*auth.AccessClaims); ok {
		return c
	}
	return nil
}

// Pipeline drives an ordered guard chain as chi middleware.
type Pipeline struct {
	guards  []Guard
	logger  *slog.Logger
	metrics *metrics.Metrics

	// sleep is replaced in tests so soft-cap delays don't slow the suite.
	sleep func(time.Duration)
}

type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithSleep(fn func(time.Duration)) Option {
	return func(p *Pipeline) { p.sleep = fn }
}

func NewPipeline(guards []Guard, opts ...Option) *Pipeline {
	p := &Pipeline{
		guards: guards,
		logger: slog.Default(),
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Middleware runs every guard in order and stops at the first rejection.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, g := range p.guards {
			r2, d := g.Check(w, r)
			if r2 != nil {
				r = r2
			}
			for k, v := range d.Headers {
				w.Header().Set(k, v)
			}

			switch d.Verdict {
			case VerdictAllow:
			case VerdictDelay:
				p.metrics.IncRateLimitDelay()
				p.sleep(d.Delay)
			case VerdictReject:
				p.metrics.IncGuardRejection(g.Name(), d.Code)
				p.logger.InfoContext(r.Context(), "request_rejected",
					"guard", g.Name(),
					"code", d.Code,
					"path", r.URL.Path,
				)
				json.WriteJSON(w, d.Status, shared.ErrorResponse{
					Error:   d.Code,
					Message: d.Message,
					Field:   d.Field,
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
