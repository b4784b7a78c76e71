// Package auth implements the credential gate: password verification, token
// issuance and validation, and role authorization. Hashing and signing
// primitives are delegated to bcrypt and HMAC-SHA256; this package decides
// how and when they are invoked.
package auth

import (
	"context"
	"log/slog"
	"net/mail"
	"regexp"
	"unicode"

	"github.com/google/uuid"

	"taskdesk/internal/auth/models"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/requestcontext"
	"taskdesk/pkg/secrets"
)

// UserStore is the persistence seam for accounts.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Service owns registration and login. Brute-force accounting stays with the
// guard pipeline; the service only reports success or failure.
type Service struct {
	store  UserStore
	tokens *TokenService
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store UserStore, tokens *TokenService, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "user store is required")
	}
	if tokens == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "token service is required")
	}
	svc := &Service{store: store, tokens: tokens, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates an account and returns it with a signed token.
func (s *Service) Register(ctx context.Context, email, name, password string, role models.Role) (*models.User, string, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, "", err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, "", err
	}
	if !role.IsValid() {
		role = models.RoleUser
	}

	hash, err := secrets.Hash(password)
	if err != nil {
		return nil, "", err
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(ctx, u.ID, u.Email, u.Role)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "could not issue token")
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", u.ID,
		"role", u.Role.String(),
		"log_type", "audit",
	)
	return u, token, nil
}

// Login verifies credentials and returns the user with a fresh token. The
// same unauthorized error is returned whether the account is unknown or the
// password is wrong, so responses do not enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	if err := secrets.Verify(password, u.PasswordHash); err != nil {
		return nil, "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	token, err := s.tokens.Issue(ctx, u.ID, u.Email, u.Role)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "could not issue token")
	}

	s.logger.InfoContext(ctx, "user logged in",
		"user_id", u.ID,
		"log_type", "audit",
	)
	return u, token, nil
}

// GetUser returns the account for an authenticated subject.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.store.GetByID(ctx, id)
}

var hasDigit = regexp.MustCompile(`[0-9]`)

// ValidateEmail checks RFC 5322 address format and a sane length bound.
func ValidateEmail(email string) error {
	if email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(email) > 255 {
		return dErrors.New(dErrors.CodeValidation, "email must be less than 255 characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return dErrors.New(dErrors.CodeValidation, "invalid email format")
	}
	return nil
}

// ValidatePassword enforces the password policy: 8-128 characters with at
// least one uppercase letter, one lowercase letter, and one digit. The
// messages are specific enough to correct a mistake without echoing input.
func ValidatePassword(password string) error {
	if password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	if len(password) < 8 {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	if len(password) > 128 {
		return dErrors.New(dErrors.CodeValidation, "password must be less than 128 characters")
	}
	var upper, lower bool
	for _, r := range password {
		if unicode.IsUpper(r) {
			upper = true
		}
		if unicode.IsLower(r) {
			lower = true
		}
	}
	if !upper {
		return dErrors.New(dErrors.CodeValidation, "password must contain at least one uppercase letter")
	}
	if !lower {
		return dErrors.New(dErrors.CodeValidation, "password must contain at least one lowercase letter")
	}
	if !hasDigit.MatchString(password) {
		return dErrors.New(dErrors.CodeValidation, "password must contain at least one number")
	}
	return nil
}
