package auth

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"taskdesk/internal/auth/models"
	"taskdesk/pkg/requestcontext"
)

// TokenErrorReason is the closed variant set for token verification failures.
// Callers match it exhaustively; there is no catch-all success-adjacent case,
// so verification fails closed.
type TokenErrorReason int

const (
	TokenExpired TokenErrorReason = iota
	TokenMalformed
	TokenInvalidSignature
	TokenMissingClaims
)

func (r TokenErrorReason) String() string {
	switch r {
	case TokenExpired:
		return "expired"
	case TokenMalformed:
		return "malformed"
	case TokenInvalidSignature:
		return "invalid_signature"
	case TokenMissingClaims:
		return "missing_claims"
	}
	return "unknown"
}

// TokenError reports why a token failed verification.
type TokenError struct {
	Reason TokenErrorReason
}

func (e *TokenError) Error() string {
	switch e.Reason {
	case TokenExpired:
		return "token expired"
	case TokenMalformed:
		return "token malformed"
	case TokenInvalidSignature:
		return "token signature invalid"
	case TokenMissingClaims:
		return "token missing required claims"
	}
	return "token invalid"
}

// AsTokenError extracts a *TokenError from an error chain.
func AsTokenError(err error) (*TokenError, bool) {
	var te *TokenError
	ok := errors.As(err, &te)
	return te, ok
}

// AccessClaims are the JWT claims for taskdesk access tokens. Subject carries
// the user ID.
type AccessClaims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

// tokenSegment matches one base64url JWT segment. Used by the cheap
// structural precheck that rejects fuzzing garbage before signature
// verification runs.
var tokenSegment = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// TokenService handles JWT creation and validation.
type TokenService struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

func NewTokenService(signingKey, issuer string, tokenTTL time.Duration) *TokenService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
	}
}

// Issue signs an access token for the user: subject id, email, role, plus
// issued-at, expiry, a fresh jti, and the fixed issuer.
func (s *TokenService) Issue(ctx context.Context, userID, email string, role models.Role) (string, error) {
	now := requestcontext.Now(ctx)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	return token.SignedString(s.signingKey)
}

// Verify parses and validates a token, returning its claims or a *TokenError.
// Structural garbage is rejected before the signature check; a well-formed,
// correctly signed token still fails with TokenMissingClaims when subject,
// email, or a valid role is absent.
func (s *TokenService) Verify(ctx context.Context, tokenString string) (*AccessClaims, error) {
	if !WellFormed(tokenString) {
		return nil, &TokenError{Reason: TokenMalformed}
	}

	claims := new(AccessClaims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return requestcontext.Now(ctx) }))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, &TokenError{Reason: TokenExpired}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, &TokenError{Reason: TokenInvalidSignature}
		default:
			return nil, &TokenError{Reason: TokenMalformed}
		}
	}
	if !parsed.Valid {
		return nil, &TokenError{Reason: TokenInvalidSignature}
	}

	if claims.Subject == "" || claims.Email == "" || !claims.Role.IsValid() {
		return nil, &TokenError{Reason: TokenMissingClaims}
	}
	return claims, nil
}

// WellFormed is the cheap structural check: exactly three dot-separated
// base64url segments. It deliberately does no cryptography.
func WellFormed(tokenString string) bool {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if !tokenSegment.MatchString(p) {
			return false
		}
	}
	return true
}

// ErrMissingToken distinguishes an absent credential from an invalid one.
var ErrMissingToken = errors.New("missing bearer token")

// BearerToken extracts the bearer token from the Authorization header.
// Returns ErrMissingToken when the header is absent or not a bearer scheme,
// and a malformed TokenError when the token fails the structural check.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrMissingToken
	}
	if !WellFormed(token) {
		return "", &TokenError{Reason: TokenMalformed}
	}
	return token, nil
}

// AuthorizeRole allows the claims' role only when it is a member of the
// allowed set. An empty allowed set denies everyone.
func AuthorizeRole(claims *AccessClaims, allowed []models.Role) bool {
	if claims == nil || !claims.Role.IsValid() {
		return false
	}
	for _, role := range allowed {
		if claims.Role == role {
			return true
		}
	}
	return false
}
