package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"peoplefinder/internal/auth/models"
	"peoplefinder/internal/auth/store/revocation"
	"peoplefinder/internal/auth/store/user"
	"peoplefinder/internal/auth/token"
	dErrors "peoplefinder/pkg/domain-errors"
)

// =============================================================================
// Auth Service Test Suite
// =============================================================================

type AuthServiceSuite struct {
	suite.Suite
	ctx     context.Context
	users   *user.Memory
	trl     *revocation.Memory
	service *Service
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.users = user.NewMemory()
	s.trl = revocation.NewMemory()

	tokens, err := token.New("test-signing-key", "peoplefinder", time.Hour)
	s.Require().NoError(err)

	s.service, err = New(s.users, s.trl, tokens)
	s.Require().NoError(err)

	_, err = s.service.Register(s.ctx, "jane", "correct-horse")
	s.Require().NoError(err)
}

func (s *AuthServiceSuite) login() *models.LoginResult {
	result, err := s.service.Login(s.ctx,
		models.LoginRequest{Username: "jane", Password: "correct-horse"},
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"203.0.113.7:5123",
	)
	s.Require().NoError(err)
	return result
}

// =============================================================================
// Login Tests
// =============================================================================

func (s *AuthServiceSuite) TestLogin() {
	s.Run("valid credentials issue a token", func() {
		result := s.login()
		s.NotEmpty(result.Token)
		s.Equal("jane", result.Username)
		s.True(result.ExpiresAt.After(time.Now()))
	})

	s.Run("username lookup is case-insensitive", func() {
		_, err := s.service.Login(s.ctx,
			models.LoginRequest{Username: "JANE", Password: "correct-horse"}, "", "")
		s.NoError(err)
	})

	s.Run("wrong password is rejected", func() {
		_, err := s.service.Login(s.ctx,
			models.LoginRequest{Username: "jane", Password: "wrong"}, "", "")
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown user gets the same error as a bad password", func() {
		_, err := s.service.Login(s.ctx,
			models.LoginRequest{Username: "nobody", Password: "x"}, "", "")
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
		s.Contains(err.Error(), "invalid credentials")
	})

	s.Run("missing fields are invalid input", func() {
		_, err := s.service.Login(s.ctx, models.LoginRequest{}, "", "")
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})
}

// =============================================================================
// Token Validation and Logout Tests
// =============================================================================

func (s *AuthServiceSuite) TestValidateAndLogout() {
	s.Run("issued token validates with identity claims", func() {
		result := s.login()

		claims, err := s.service.ValidateToken(result.Token)
		s.Require().NoError(err)
		s.Equal(result.UserID.String(), claims.UserID)
		s.Equal("jane", claims.Username)
		s.NotEmpty(claims.TokenID)
	})

	s.Run("garbage token is rejected", func() {
		_, err := s.service.ValidateToken("not-a-jwt")
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("logout revokes the token", func() {
		result := s.login()
		claims, err := s.service.ValidateToken(result.Token)
		s.Require().NoError(err)

		s.Require().NoError(s.service.Logout(s.ctx, claims.TokenID))

		_, err = s.service.ValidateToken(result.Token)
		s.Require().Error(err)
		s.Contains(err.Error(), "revoked")
	})

	s.Run("revoking one token leaves others valid", func() {
		first := s.login()
		second := s.login()

		firstClaims, err := s.service.ValidateToken(first.Token)
		s.Require().NoError(err)
		s.Require().NoError(s.service.Logout(s.ctx, firstClaims.TokenID))

		_, err = s.service.ValidateToken(second.Token)
		s.NoError(err)
	})
}

// =============================================================================
// Registration Tests
// =============================================================================

func (s *AuthServiceSuite) TestRegister() {
	s.Run("duplicate username conflicts", func() {
		_, err := s.service.Register(s.ctx, "jane", "another")
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})

	s.Run("password is stored hashed", func() {
		u, err := s.users.FindByUsername(s.ctx, "jane")
		s.Require().NoError(err)
		s.NotEqual("correct-horse", u.PasswordHash)
		s.NotEmpty(u.PasswordHash)
	})
}
