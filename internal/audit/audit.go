// Package audit emits write-only SuspiciousEvent records to the structured
// log sink. Events are append-only, never read back, and never block the
// request path: emission is a short synchronous slog call and raw attacker
// payloads appear here only, never in HTTP responses.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/mssola/useragent"

	"taskdesk/pkg/requestcontext"
)

// Kind classifies a suspicious event.
type Kind string

const (
	KindInjectionDetected Kind = "injection_detected"
	KindXSSDetected       Kind = "xss_detected"
	KindTraversalDetected Kind = "traversal_detected"
	KindMalformedToken    Kind = "malformed_token"
	KindInvalidSignature  Kind = "invalid_signature"
	KindMissingClaims     Kind = "missing_claims"
	KindRoleDenied        Kind = "role_denied"
	KindBruteForceBlock   Kind = "brute_force_block"
	KindRateLimitBlock    Kind = "rate_limit_block"
	KindUploadRejected    Kind = "upload_rejected"
	KindConnectionFlood   Kind = "connection_flood"
)

// Event captures one suspicious request observation.
type Event struct {
	Timestamp time.Time
	Kind      Kind
	ClientIP  string
	Path      string
	Method    string
	UserAgent string
	Details   map[string]any
}

// Recorder writes suspicious events to the structured log.
type Recorder struct {
	logger *slog.Logger
}

func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Record emits the event, enriched with the request ID and a parsed
// browser/OS summary of the User-Agent. Emission is best-effort.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil || r.logger == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = requestcontext.Now(ctx)
	}
	if ev.ClientIP == "" {
		ev.ClientIP = requestcontext.ClientIP(ctx)
	}

	attrs := []any{
		"event", string(ev.Kind),
		"log_type", "audit",
		"client_ip", ev.ClientIP,
		"path", ev.Path,
		"method", ev.Method,
		"at", ev.Timestamp.UTC().Format(time.RFC3339),
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	if ev.UserAgent != "" {
		ua := useragent.New(ev.UserAgent)
		browser, version := ua.Browser()
		attrs = append(attrs,
			"ua_browser", browser,
			"ua_browser_version", version,
			"ua_os", ua.OS(),
			"ua_bot", ua.Bot(),
		)
	}
	for k, v := range ev.Details {
		attrs = append(attrs, k, v)
	}

	r.logger.WarnContext(ctx, string(ev.Kind), attrs...)
}
