package auth

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdesk/internal/auth/models"
	"taskdesk/pkg/requestcontext"
)

func newTestTokenService() *TokenService {
	return NewTokenService("test-signing-key", "taskdesk", 24*time.Hour)
}

func ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := newTestTokenService()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	token, err := svc.Issue(ctxAt(now), "user-123", "dev@example.com", models.RoleAdmin)
	require.NoError(t, err)

	claims, err := svc.Verify(ctxAt(now), token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "dev@example.com", claims.Email)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "taskdesk", claims.Issuer)
	assert.NotEmpty(t, claims.ID, "jti must be set")
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := newTestTokenService()
	issued := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	token, err := svc.Issue(ctxAt(issued), "user-123", "dev@example.com", models.RoleUser)
	require.NoError(t, err)

	_, err = svc.Verify(ctxAt(issued.Add(25*time.Hour)), token)
	te, ok := AsTokenError(err)
	require.True(t, ok)
	// Expiry must always surface as Expired, never as a different reason.
	assert.Equal(t, TokenExpired, te.Reason)
}

func TestVerifyMalformedToken(t *testing.T) {
	svc := newTestTokenService()
	ctx := context.Background()

	for _, tok := range []string{
		"",
		"garbage",
		"a.b",
		"a.b.c.d",
		"seg!ment.pay|load.s g",
	} {
		_, err := svc.Verify(ctx, tok)
		te, ok := AsTokenError(err)
		require.True(t, ok, "token %q", tok)
		assert.Equal(t, TokenMalformed, te.Reason, "token %q", tok)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	svc := newTestTokenService()
	other := NewTokenService("a-different-key", "taskdesk", 24*time.Hour)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	token, err := other.Issue(ctxAt(now), "user-123", "dev@example.com", models.RoleUser)
	require.NoError(t, err)

	_, err = svc.Verify(ctxAt(now), token)
	te, ok := AsTokenError(err)
	require.True(t, ok)
	assert.Equal(t, TokenInvalidSignature, te.Reason)
}

func TestVerifyMissingClaims(t *testing.T) {
	svc := newTestTokenService()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// Correctly signed but without a subject.
	token, err := svc.Issue(ctxAt(now), "", "dev@example.com", models.RoleUser)
	require.NoError(t, err)

	_, err = svc.Verify(ctxAt(now), token)
	te, ok := AsTokenError(err)
	require.True(t, ok)
	assert.Equal(t, TokenMissingClaims, te.Reason)

	// Correctly signed but with a role outside the fixed set.
	token, err = svc.Issue(ctxAt(now), "user-123", "dev@example.com", models.Role("ROOT"))
	require.NoError(t, err)

	_, err = svc.Verify(ctxAt(now), token)
	te, ok = AsTokenError(err)
	require.True(t, ok)
	assert.Equal(t, TokenMissingClaims, te.Reason)
}

func TestBearerToken(t *testing.T) {
	svc := newTestTokenService()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	valid, err := svc.Issue(ctxAt(now), "u", "e@example.com", models.RoleUser)
	require.NoError(t, err)

	t.Run("missing header", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, "/tasks", nil)
		_, err := BearerToken(r)
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, "/tasks", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		_, err := BearerToken(r)
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("structural garbage rejected before verification", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, "/tasks", nil)
		r.Header.Set("Authorization", "Bearer not-a-jwt")
		_, err := BearerToken(r)
		te, ok := AsTokenError(err)
		require.True(t, ok)
		assert.Equal(t, TokenMalformed, te.Reason)
	})

	t.Run("valid bearer token extracted", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, "/tasks", nil)
		r.Header.Set("Authorization", "Bearer "+valid)
		got, err := BearerToken(r)
		require.NoError(t, err)
		assert.Equal(t, valid, got)
		assert.Len(t, strings.Split(got, "."), 3)
	})
}

func TestAuthorizeRole(t *testing.T) {
	claims := &AccessClaims{Role: models.RoleUser}

	assert.True(t, AuthorizeRole(claims, []models.Role{models.RoleUser, models.RoleAdmin}))
	assert.False(t, AuthorizeRole(claims, []models.Role{models.RoleAdmin, models.RoleBoss}))
	// An empty allow-list excludes everyone, regardless of role.
	assert.False(t, AuthorizeRole(&AccessClaims{Role: models.RoleBoss}, nil))
	assert.False(t, AuthorizeRole(nil, []models.Role{models.RoleUser}))
	assert.False(t, AuthorizeRole(&AccessClaims{Role: models.Role("ROOT")}, []models.Role{models.Role("ROOT")}))
}
