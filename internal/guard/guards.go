package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"taskdesk/internal/audit"
	"taskdesk/internal/auth"
	authModels "taskdesk/internal/auth/models"
	"taskdesk/internal/platform/metrics"
	"taskdesk/internal/ratelimit"
	"taskdesk/internal/security/attempt"
	"taskdesk/internal/security/patterns"
	"taskdesk/internal/security/sanitize"
	"taskdesk/pkg/requestcontext"
)

// maxInspectedBody caps how much request body the pattern and sanitize
// stages will buffer.
const maxInspectedBody = 256 << 10

// RateLimit guards a route class with a dual-threshold request limiter keyed
// by client address. Trusted addresses bypass it per the controller config.
type RateLimit struct {
	ctl    *ratelimit.Controller
	prefix ratelimit.KeyPrefix
	audit  *audit.Recorder
}

func NewRateLimit(ctl *ratelimit.Controller, prefix ratelimit.KeyPrefix, rec *audit.Recorder) *RateLimit {
	return &RateLimit{ctl: ctl, prefix: prefix, audit: rec}
}

func (g *RateLimit) Name() string { return "rate_limit" }

func (g *RateLimit) Check(_ http.ResponseWriter, r *http.Request) (*http.Request, Decision) {
	ctx := r.Context()
	ip := requestcontext.ClientIP(ctx)
	if g.ctl.Exempt(ip) {
		return nil, allow()
	}

	res := g.ctl.Admit(ctx, ratelimit.NewKey(g.prefix, ip, "").String())
	headers := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(res.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(res.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(res.ResetAt.Unix(), 10),
	}

	switch res.Kind {
	case ratelimit.KindDelay:
		d := delay(res.Delay)
		d.Headers = headers
		return nil, d
	case ratelimit.KindReject:
		g.audit.Record(ctx, audit.Event{
			Kind:   audit.KindRateLimitBlock,
			Path:   r.URL.Path,
			Method: r.Method,
			Details: map[string]any{
				"limit":       res.Limit,
				"retry_after": res.RetryAfter,
			},
		})
		d := reject(http.StatusTooManyRequests, "rate_limit_exceeded",
			"too many requests from this address, slow down")
		headers["Retry-After"] = strconv.Itoa(res.RetryAfter)
		d.Headers = headers
		return nil, d
	}

	return nil, Decision{Verdict: VerdictAllow, Headers: headers}
}

// BruteForce refuses requests from addresses whose credential failures have
// exhausted their attempt budget on a route. It only reads the tracker; the
// login handler records outcomes under the same key.
type BruteForce struct {
	tracker *attempt.Tracker
	route   string
	audit   *audit.Recorder
	metrics *metrics.Metrics
}

func NewBruteForce(tracker *attempt.Tracker, route string, rec *audit.Recorder, m *metrics.Metrics) *BruteForce {
	return &BruteForce{tracker: tracker, route: route, audit: rec, metrics: m}
}

// BruteForceKey builds the tracker key for a client address on a route, so
// the guard and the handler recording outcomes always agree on it.
func BruteForceKey(route, ip string) string {
	return ratelimit.NewKey(ratelimit.KeyPrefixAuth, ip, route).String()
}

func (g *BruteForce) Name() string { return "brute_force" }

func (g *BruteForce) Check(_ http.ResponseWriter, r *http.Request) (*http.Request, Decision) {
	ctx := r.Context()
	ip := requestcontext.ClientIP(ctx)

	status := g.tracker.Check(ctx, BruteForceKey(g.route, ip))
	if status.Allowed {
		return nil, allow()
	}

	g.metrics.IncBruteForceBlock()
	g.audit.Record(ctx, audit.Event{
		Kind:   audit.KindBruteForceBlock,
		Path:   r.URL.Path,
		Method: r.Method,
		Details: map[string]any{
			"retry_after": status.RetryAfter,
		},
	})

	d := reject(http.StatusTooManyRequests, "too_many_attempts",
		"too many failed attempts, try again later")
	d.Headers = map[string]string{
		"Retry-After": strconv.Itoa(status.RetryAfter),
	}
	return nil, d
}

// PatternScan inspects the URL path, query parameters and JSON body fields
// for injection, XSS and traversal signatures before any handler sees them.
// The raw offending value goes to the audit log only, never to the client.
type PatternScan struct {
	audit   *audit.Recorder
	metrics *metrics.Metrics
}

func NewPatternScan(rec *audit.Recorder, m *metrics.Metrics) *PatternScan {
	return &PatternScan{audit: rec, metrics: m}
}

func (g *PatternScan) Name() string { return "pattern_scan" }

func (g *PatternScan) Check(_ http.ResponseWriter, r *http.Request) (*http.Request, Decision) {
	ctx := r.Context()

	if raw, err := url.PathUnescape(r.URL.EscapedPath()); err == nil {
		if patterns.MatchesPathTraversal(raw) {
			return nil, g.rejectField(ctx, r, audit.KindTraversalDetected, "path", raw)
		}
	}

	for field, values := range r.URL.Query() {
		for _, v := range values {
			if kind, ok := g.classify(v); ok {
				return nil, g.rejectField(ctx, r, kind, field, v)
			}
		}
	}

	body, fields, ok := bufferJSONBody(r)
	if !ok {
		return nil, reject(http.StatusBadRequest, "bad_request", "request body is not valid json")
	}
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	if fields != nil {
		var d *Decision
		walkStrings(fields, "", func(field, v string) bool {
			if kind, ok := g.classify(v); ok {
				dec := g.rejectField(ctx, r, kind, field, v)
				d = &dec
				return false
			}
			return true
		})
		if d != nil {
			return nil, *d
		}
		r = r.WithContext(context.WithValue(ctx, bodyFieldsKey, fields))
	}

	return r, allow()
}

func (g *PatternScan) classify(v string) (audit.Kind, bool) {
	switch {
	case patterns.MatchesInjection(v):
		return audit.KindInjectionDetected, true
	case patterns.MatchesXSS(v):
		return audit.KindXSSDetected, true
	case patterns.MatchesPathTraversal(v):
		return audit.KindTraversalDetected, true
	}
	return "", false
}

func (g *PatternScan) rejectField(ctx context.Context, r *http.Request, kind audit.Kind, field, raw string) Decision {
	g.metrics.IncSuspiciousInput(string(kind))
	g.audit.Record(ctx, audit.Event{
		Kind:      kind,
		Path:      r.URL.Path,
		Method:    r.Method,
		UserAgent: r.UserAgent(),
		Details: map[string]any{
			"field":       field,
			"raw_payload": raw,
		},
	})

	d := reject(http.StatusBadRequest, "suspicious_input", "request contains a disallowed pattern")
	d.Field = field
	return d
}

// Sanitize normalizes query parameters and the buffered JSON body fields so
// handlers receive cleaned values. It never rejects.
type Sanitize struct{}

func NewSanitize() *Sanitize { return &Sanitize{} }

func (g *Sanitize) Name() string { return "sanitize" }

func (g *Sanitize) Check(_ http.ResponseWriter, r *http.Request) (*http.Request, Decision) {
	if q := r.URL.Query(); len(q) > 0 {
		changed := false
		for field, values := range q {
			for i, v := range values {
				cleaned := sanitize.String(v, sanitize.DefaultMaxLength)
				if cleaned != v {
					values[i] = cleaned
					changed = true
				}
			}
			q[field] = values
		}
		if changed {
			r.URL.RawQuery = q.Encode()
		}
	}

	ctx := r.Context()
	fields := BodyFields(ctx)
	if fields == nil {
		return r, allow()
	}

	cleaned := sanitize.Map(fields, sanitize.DefaultMaxLength)
	return r.WithContext(context.WithValue(ctx, bodyFieldsKey, cleaned)), allow()
}

// Authenticate verifies the bearer token and attaches its claims to the
// request context.
type Authenticate struct {
	tokens *auth.TokenService
	audit  *audit.Recorder
}

func NewAuthenticate(tokens *auth.TokenService, rec *audit.Recorder) *Authenticate {
	return &Authenticate{tokens: tokens, audit: rec}
}

func (g *Authenticate) Name() string { return "authenticate" }

func (g *Authenticate) Check(_ http.ResponseWriter, r *http.Request) (*http.Request, Decision) {
	ctx := r.Context()

	tokenString, err := auth.BearerToken(r)
	if err != nil {
		if te, ok := auth.AsTokenError(err); ok && te.Reason == auth.TokenMalformed {
			g.audit.Record(ctx, audit.Event{
				Kind:      audit.KindMalformedToken,
				Path:      r.URL.Path,
				Method:    r.Method,
				UserAgent: r.UserAgent(),
			})
			return nil, reject(http.StatusUnauthorized, "token_malformed", te.Error())
		}
		return nil, reject(http.StatusUnauthorized, "missing_token", "authorization header with a bearer token is required")
	}

	claims, err := g.tokens.Verify(ctx, tokenString)
	if err != nil {
		code := "invalid_token"
		kind := audit.KindMalformedToken
		if te, ok := auth.AsTokenError(err); ok {
			switch te.Reason {
			case auth.TokenExpired:
				code = "token_expired"
				kind = ""
			case auth.TokenMalformed:
				code = "token_malformed"
			case auth.TokenInvalidSignature:
				code = "invalid_signature"
				kind = audit.KindInvalidSignature
			case auth.TokenMissingClaims:
				code = "missing_claims"
				kind = audit.KindMissingClaims
			}
		}
		// Expiry is routine client behavior, not a suspicious event.
		if kind != "" {
			g.audit.Record(ctx, audit.Event{
				Kind:      kind,
				Path:      r.URL.Path,
				Method:    r.Method,
				UserAgent: r.UserAgent(),
			})
		}
		return nil, reject(http.StatusUnauthorized, code, err.Error())
	}

	return r.WithContext(context.WithValue(ctx, claimsKey, claims)), allow()
}

// Authorize enforces a role allow-list against the authenticated claims. An
// empty allow-list denies everyone.
type Authorize struct {
	allowed []authModels.Role
	audit   *audit.Recorder
}

func NewAuthorize(allowed []authModels.Role, rec *audit.Recorder) *Authorize {
	return &Authorize{allowed: allowed, audit: rec}
}

func (g *Authorize) Name() string { return "authorize" }

func (g *Authorize) Check(_ http.ResponseWriter, r *http.Request) (*http.Request, Decision) {
	ctx := r.Context()
	claims := Claims(ctx)
	if claims == nil {
		return nil, reject(http.StatusUnauthorized, "missing_token", "authentication required")
	}

	if !auth.AuthorizeRole(claims, g.allowed) {
		required := make([]string, len(g.allowed))
		for i, role := range g.allowed {
			required[i] = string(role)
		}
		g.audit.Record(ctx, audit.Event{
			Kind:   audit.KindRoleDenied,
			Path:   r.URL.Path,
			Method: r.Method,
			Details: map[string]any{
				"subject":        claims.Subject,
				"role":           string(claims.Role),
				"required_roles": required,
			},
		})
		return nil, reject(http.StatusForbidden, "forbidden", "insufficient role for this operation")
	}

	return nil, allow()
}

// bufferJSONBody reads and restores a JSON object body, returning its raw
// bytes and parsed fields. The bool result is false only for unparseable
// JSON; non-JSON and empty bodies pass through untouched.
func bufferJSONBody(r *http.Request) ([]byte, map[string]any, bool) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil, true
	}
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || ct != "application/json" {
		return nil, nil, true
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxInspectedBody))
	if err != nil {
		return nil, nil, true
	}
	r.Body.Close()

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		// Restore the body so the error path can still log it if needed.
		r.Body = io.NopCloser(bytes.NewReader(raw))
		return raw, nil, false
	}
	return raw, fields, true
}

// walkStrings visits every string value in a decoded JSON object, including
// nested objects and arrays. The visitor returns false to stop the walk.
func walkStrings(m map[string]any, prefix string, visit func(field, value string) bool) bool {
	for k, v := range m {
		field := k
		if prefix != "" {
			field = prefix + "." + k
		}
		if !walkValue(v, field, visit) {
			return false
		}
	}
	return true
}

func walkValue(v any, field string, visit func(field, value string) bool) bool {
	switch val := v.(type) {
	case string:
		return visit(field, val)
	case map[string]any:
		return walkStrings(val, field, visit)
	case []any:
		for i, item := range val {
			if !walkValue(item, fmt.Sprintf("%s[%d]", field, i), visit) {
				return false
			}
		}
	}
	return true
}
