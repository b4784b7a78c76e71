package guard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"taskdesk/internal/audit"
	"taskdesk/internal/auth"
	authModels "taskdesk/internal/auth/models"
	"taskdesk/internal/ratelimit"
	"taskdesk/internal/security/attempt"
	"taskdesk/pkg/requestcontext"
)

const testSigningKey = "guard-test-signing-key-0123456789"

type GuardSuite struct {
	suite.Suite

	recorder *audit.Recorder
	tokens   *auth.TokenService
}

func (s *GuardSuite) SetupTest() {
	s.recorder = audit.NewRecorder(slog.Default())
	s.tokens = auth.NewTokenService(testSigningKey, "taskdesk", time.Hour)
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

// serve runs a request through a pipeline in front of a handler that records
// whether it was reached.
func (s *GuardSuite) serve(p *Pipeline, r *http.Request) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w, reached
}

func (s *GuardSuite) request(method, target, ip string, body string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	ctx := requestcontext.WithClientIP(r.Context(), ip)
	return r.WithContext(ctx)
}

func (s *GuardSuite) TestRateLimitRejectsBeyondHardCap() {
	ctl := ratelimit.New(ratelimit.Config{HardCap: 3, Window: time.Minute})
	p := NewPipeline([]Guard{NewRateLimit(ctl, ratelimit.KeyPrefixIP, s.recorder)})

	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		last, _ = s.serve(p, s.request(http.MethodGet, "/api/tasks", "203.0.113.9", ""))
	}

	s.Equal(http.StatusTooManyRequests, last.Code)
	s.NotEmpty(last.Header().Get("Retry-After"))
	s.Equal("3", last.Header().Get("X-RateLimit-Limit"))

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(last.Body.Bytes(), &resp))
	s.Equal("rate_limit_exceeded", resp["error"])
}

func (s *GuardSuite) TestRateLimitDelaysBetweenCaps() {
	ctl := ratelimit.New(ratelimit.Config{
		SoftCap:      1,
		HardCap:      10,
		Window:       time.Minute,
		SoftCapDelay: 500 * time.Millisecond,
	})

	var slept time.Duration
	p := NewPipeline(
		[]Guard{NewRateLimit(ctl, ratelimit.KeyPrefixIP, s.recorder)},
		WithSleep(func(d time.Duration) { slept += d }),
	)

	w, reached := s.serve(p, s.request(http.MethodGet, "/api/tasks", "203.0.113.9", ""))
	s.True(reached)
	s.Zero(slept)

	w, reached = s.serve(p, s.request(http.MethodGet, "/api/tasks", "203.0.113.9", ""))
	s.True(reached, "soft cap delays but still admits")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(500*time.Millisecond, slept)
}

func (s *GuardSuite) TestRateLimitExemptsTrustedAddress() {
	ctl := ratelimit.New(ratelimit.Config{
		HardCap:      1,
		Window:       time.Minute,
		TrustedCIDRs: []string{"127.0.0.0/8"},
	})
	p := NewPipeline([]Guard{NewRateLimit(ctl, ratelimit.KeyPrefixIP, s.recorder)})

	for i := 0; i < 20; i++ {
		w, reached := s.serve(p, s.request(http.MethodGet, "/api/tasks", "127.0.0.1", ""))
		s.True(reached)
		s.Equal(http.StatusOK, w.Code)
	}
}

func (s *GuardSuite) TestBruteForceBlocksExhaustedAddress() {
	tracker := attempt.New(attempt.Config{MaxAttempts: 2, Window: 15 * time.Minute})
	ctx := requestcontext.WithClientIP(context.Background(), "198.51.100.4")
	key := BruteForceKey("login", "198.51.100.4")
	tracker.RecordFailure(ctx, key)
	tracker.RecordFailure(ctx, key)

	p := NewPipeline([]Guard{NewBruteForce(tracker, "login", s.recorder, nil)})
	w, reached := s.serve(p, s.request(http.MethodPost, "/api/auth/login", "198.51.100.4", ""))

	s.False(reached)
	s.Equal(http.StatusTooManyRequests, w.Code)

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	s.Require().NoError(err)
	s.Positive(retryAfter)
	s.LessOrEqual(retryAfter, int((15 * time.Minute).Seconds()))

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("too_many_attempts", resp["error"])
}

func (s *GuardSuite) TestBruteForceScopedByRoute() {
	tracker := attempt.New(attempt.Config{MaxAttempts: 2, Window: 15 * time.Minute})
	ctx := requestcontext.WithClientIP(context.Background(), "198.51.100.4")
	key := BruteForceKey("login", "198.51.100.4")
	tracker.RecordFailure(ctx, key)
	tracker.RecordFailure(ctx, key)

	p := NewPipeline([]Guard{NewBruteForce(tracker, "reset", s.recorder, nil)})
	w, reached := s.serve(p, s.request(http.MethodPost, "/api/auth/reset", "198.51.100.4", ""))

	s.True(reached)
	s.Equal(http.StatusOK, w.Code)
}

func (s *GuardSuite) TestPatternScanRejectsInjectionInQuery() {
	p := NewPipeline([]Guard{NewPatternScan(s.recorder, nil)})
	w, reached := s.serve(p, s.request(http.MethodGet, "/api/tasks?status=1%27%20OR%20%271%27%3D%271", "203.0.113.9", ""))

	s.False(reached)
	s.Equal(http.StatusBadRequest, w.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("suspicious_input", resp["error"])
	s.Equal("status", resp["field"])
	// The raw payload stays server-side.
	s.NotContains(w.Body.String(), "OR")
}

func (s *GuardSuite) TestPatternScanRejectsXSSInBody() {
	p := NewPipeline([]Guard{NewPatternScan(s.recorder, nil)})
	body := `{"title":"hello","description":"<script>alert(1)</script>"}`
	w, reached := s.serve(p, s.request(http.MethodPost, "/api/tasks", "203.0.113.9", body))

	s.False(reached)
	s.Equal(http.StatusBadRequest, w.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("description", resp["field"])
}

func (s *GuardSuite) TestPatternScanRejectsNestedTraversal() {
	p := NewPipeline([]Guard{NewPatternScan(s.recorder, nil)})
	body := `{"attachment":{"name":"../../etc/passwd"}}`
	w, reached := s.serve(p, s.request(http.MethodPost, "/api/tasks", "203.0.113.9", body))

	s.False(reached)
	s.Equal(http.StatusBadRequest, w.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("attachment.name", resp["field"])
}

func (s *GuardSuite) TestSanitizePassesCleanedFieldsToHandler() {
	p := NewPipeline([]Guard{NewPatternScan(s.recorder, nil), NewSanitize()})

	var fields map[string]any
	h := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields = BodyFields(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"title":"  spaced   out  <b>title</b>  ","count":3}`
	w := httptest.NewRecorder()
	h.ServeHTTP(w, s.request(http.MethodPost, "/api/tasks", "203.0.113.9", body))

	s.Require().NotNil(fields)
	s.Equal("spaced out btitle/b", fields["title"])
	s.Equal(float64(3), fields["count"])
}

func (s *GuardSuite) TestSanitizeCleansQueryParams() {
	p := NewPipeline([]Guard{NewSanitize()})

	var got string
	h := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("assignee")
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, s.request(http.MethodGet, "/api/tasks?assignee=%20%20user%22one%20%20", "203.0.113.9", ""))

	s.Equal(http.StatusOK, w.Code)
	s.Equal("userone", got)
}

func (s *GuardSuite) TestPatternScanRestoresBodyForHandler() {
	p := NewPipeline([]Guard{NewPatternScan(s.recorder, nil)})

	var decoded struct {
		Title string `json:"title"`
	}
	h := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(s.T(), json.NewDecoder(r.Body).Decode(&decoded))
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, s.request(http.MethodPost, "/api/tasks", "203.0.113.9", `{"title":"plain"}`))

	s.Equal(http.StatusOK, w.Code)
	s.Equal("plain", decoded.Title)
}

func (s *GuardSuite) TestAuthenticateAttachesClaims() {
	token, err := s.tokens.Issue(context.Background(), "user-1", "a@b.test", authModels.RoleUser)
	s.Require().NoError(err)

	p := NewPipeline([]Guard{NewAuthenticate(s.tokens, s.recorder)})

	var claims *auth.AccessClaims
	h := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = Claims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := s.request(http.MethodGet, "/api/tasks", "203.0.113.9", "")
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	s.Equal(http.StatusOK, w.Code)
	s.Require().NotNil(claims)
	s.Equal("user-1", claims.Subject)
	s.Equal(authModels.RoleUser, claims.Role)
}

func (s *GuardSuite) TestAuthenticateErrorCodes() {
	past := requestcontext.WithTime(context.Background(), time.Now().Add(-2*time.Hour))
	expired, err := s.tokens.Issue(past, "user-1", "a@b.test", authModels.RoleUser)
	s.Require().NoError(err)

	otherSvc := auth.NewTokenService("a-different-signing-key-material", "taskdesk", time.Hour)
	tampered, err := otherSvc.Issue(context.Background(), "user-1", "a@b.test", authModels.RoleUser)
	s.Require().NoError(err)

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"missing header", "", "missing_token"},
		{"not a jwt", "Bearer not.a", "token_malformed"},
		{"expired", "Bearer " + expired, "token_expired"},
		{"wrong key", "Bearer " + tampered, "invalid_signature"},
	}

	p := NewPipeline([]Guard{NewAuthenticate(s.tokens, s.recorder)})
	for _, tt := range tests {
		s.Run(tt.name, func() {
			r := s.request(http.MethodGet, "/api/tasks", "203.0.113.9", "")
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w, reached := s.serve(p, r)

			s.False(reached)
			s.Equal(http.StatusUnauthorized, w.Code)

			var resp map[string]string
			s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
			s.Equal(tt.wantCode, resp["error"])
		})
	}
}

func (s *GuardSuite) TestAuthorizeDeniesInsufficientRole() {
	token, err := s.tokens.Issue(context.Background(), "user-1", "a@b.test", authModels.RoleUser)
	s.Require().NoError(err)

	p := NewPipeline([]Guard{
		NewAuthenticate(s.tokens, s.recorder),
		NewAuthorize([]authModels.Role{authModels.RoleAdmin, authModels.RoleBoss}, s.recorder),
	})

	r := s.request(http.MethodDelete, "/api/tasks/t1", "203.0.113.9", "")
	r.Header.Set("Authorization", "Bearer "+token)
	w, reached := s.serve(p, r)

	s.False(reached)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *GuardSuite) TestAuthorizeEmptyAllowListDeniesEveryone() {
	token, err := s.tokens.Issue(context.Background(), "boss-1", "boss@b.test", authModels.RoleBoss)
	s.Require().NoError(err)

	p := NewPipeline([]Guard{
		NewAuthenticate(s.tokens, s.recorder),
		NewAuthorize(nil, s.recorder),
	})

	r := s.request(http.MethodGet, "/api/admin", "203.0.113.9", "")
	r.Header.Set("Authorization", "Bearer "+token)
	w, reached := s.serve(p, r)

	s.False(reached)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *GuardSuite) TestPipelineStopsAtFirstRejection() {
	ctl := ratelimit.New(ratelimit.Config{HardCap: 0, Window: time.Minute})
	checked := false
	spy := guardFunc{
		name: "spy",
		fn: func(w http.ResponseWriter, r *http.Request) (*http.Request, Decision) {
			checked = true
			return nil, allow()
		},
	}

	p := NewPipeline([]Guard{NewRateLimit(ctl, ratelimit.KeyPrefixIP, s.recorder), spy})
	w, reached := s.serve(p, s.request(http.MethodGet, "/api/tasks", "203.0.113.9", ""))

	s.Equal(http.StatusTooManyRequests, w.Code)
	s.False(reached)
	s.False(checked, "guards after a rejection must not run")
}

type guardFunc struct {
	name string
	fn   func(http.ResponseWriter, *http.Request) (*http.Request, Decision)
}

func (g guardFunc) Name() string { return g.name }
func (g guardFunc) Check(w http.ResponseWriter, r *http.Request) (*http.Request, Decision) {
	return g.fn(w, r)
}

func TestWalkStrings(t *testing.T) {
	m := map[string]any{
		"a": "one",
		"b": map[string]any{"c": "two"},
		"d": []any{"three", map[string]any{"e": "four"}},
		"n": 42.0,
	}

	seen := map[string]string{}
	walkStrings(m, "", func(field, value string) bool {
		seen[field] = value
		return true
	})

	assert.Equal(t, map[string]string{
		"a":      "one",
		"b.c":    "two",
		"d[0]":   "three",
		"d[1].e": "four",
	}, seen)
}
