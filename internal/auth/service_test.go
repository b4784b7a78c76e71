package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"taskdesk/internal/auth/models"
	userStore "taskdesk/internal/auth/store/user"
	dErrors "taskdesk/pkg/domain-errors"
)

type AuthServiceSuite struct {
	suite.Suite
	service *Service
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := NewTokenService("test-signing-key", "taskdesk", 24*time.Hour)

	var err error
	s.service, err = New(userStore.NewInMemoryUserStore(), tokens, WithLogger(logger))
	s.Require().NoError(err)
}

func (s *AuthServiceSuite) TestRegisterAndLogin() {
	ctx := context.Background()

	u, token, err := s.service.Register(ctx, "dev@example.com", "Dev", "Sup3rSecret", models.RoleUser)
	s.Require().NoError(err)
	s.NotEmpty(u.ID)
	s.NotEmpty(token)
	s.NotEqual("Sup3rSecret", u.PasswordHash)

	loggedIn, token2, err := s.service.Login(ctx, "dev@example.com", "Sup3rSecret")
	s.Require().NoError(err)
	s.Equal(u.ID, loggedIn.ID)
	s.NotEmpty(token2)
}

func (s *AuthServiceSuite) TestDuplicateEmailConflicts() {
	ctx := context.Background()
	_, _, err := s.service.Register(ctx, "dev@example.com", "Dev", "Sup3rSecret", models.RoleUser)
	s.Require().NoError(err)

	_, _, err = s.service.Register(ctx, "dev@example.com", "Other", "An0therPass", models.RoleUser)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *AuthServiceSuite) TestLoginWrongPassword() {
	ctx := context.Background()
	_, _, err := s.service.Register(ctx, "dev@example.com", "Dev", "Sup3rSecret", models.RoleUser)
	s.Require().NoError(err)

	_, _, err = s.service.Login(ctx, "dev@example.com", "WrongPass1")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *AuthServiceSuite) TestLoginUnknownAccountSameError() {
	ctx := context.Background()
	_, _, knownErr := s.service.Login(ctx, "nobody@example.com", "Sup3rSecret")
	s.True(dErrors.HasCode(knownErr, dErrors.CodeUnauthorized))
	s.EqualError(knownErr, "invalid credentials", "unknown account and wrong password must be indistinguishable")
}

func (s *AuthServiceSuite) TestPasswordPolicy() {
	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{"empty", "", "password is required"},
		{"too short", "Ab1", "password must be at least 8 characters"},
		{"no uppercase", "lowercase1", "password must contain at least one uppercase letter"},
		{"no lowercase", "UPPERCASE1", "password must contain at least one lowercase letter"},
		{"no digit", "NoDigitsHere", "password must contain at least one number"},
		{"valid", "G00dEnough", ""},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := ValidatePassword(tt.password)
			if tt.wantErr == "" {
				s.NoError(err)
			} else {
				s.EqualError(err, tt.wantErr)
			}
		})
	}
}

func (s *AuthServiceSuite) TestEmailValidation() {
	s.NoError(ValidateEmail("dev@example.com"))
	s.Error(ValidateEmail(""))
	s.Error(ValidateEmail("not-an-email"))
}
