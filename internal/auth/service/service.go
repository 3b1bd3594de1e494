// Package service implements login, logout, and token validation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"peoplefinder/internal/auth/device"
	"peoplefinder/internal/auth/models"
	"peoplefinder/internal/auth/token"
	"peoplefinder/internal/platform/middleware"
	dErrors "peoplefinder/pkg/domain-errors"
	"peoplefinder/pkg/sentinel"
)

// UserStore looks up and creates user accounts.
type UserStore interface {
	Create(ctx context.Context, u models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RevocationList tracks tokens invalidated before their expiry.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Service authenticates users and validates presented tokens. It implements
// middleware.JWTValidator so handlers can gate routes on it directly.
type Service struct {
	users       UserStore
	revocations RevocationList
	tokens      *token.Service
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates an auth service.
func New(users UserStore, revocations RevocationList, tokens *token.Service, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user store is required")
	}
	if revocations == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "revocation list is required")
	}
	if tokens == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "token service is required")
	}
	s := &Service{
		users:       users,
		revocations: revocations,
		tokens:      tokens,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login verifies credentials and issues a token. The user agent only feeds
// the audit log; a failed parse never blocks login.
func (s *Service) Login(ctx context.Context, req models.LoginRequest, userAgent, remoteAddr string) (*models.LoginResult, error) {
	if req.Username == "" || req.Password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "username and password are required")
	}

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Same error as a bad password so usernames cannot be probed.
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	signed, claims, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID,
		"username", user.Username,
		"device", device.ParseUserAgent(userAgent),
		"remote_addr", remoteAddr,
	)

	return &models.LoginResult{
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    user.ID,
		Username:  user.Username,
	}, nil
}

// Logout revokes the presented token for the remainder of its lifetime.
func (s *Service) Logout(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	}
	if err := s.revocations.Revoke(ctx, tokenID, s.tokens.TTL()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke token")
	}
	return nil
}

// Register creates a user with a bcrypt-hashed password. Used by seeding and
// tests; there is no public signup surface.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}

	user := models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeConflict, "username already taken")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create user")
	}
	return &user, nil
}

// ValidateToken implements middleware.JWTValidator: signature, expiry, and
// revocation all have to pass.
func (s *Service) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revocations.IsRevoked(context.Background(), claims.ID)
	if err != nil {
		// Fail closed: an unreadable revocation list must not admit tokens.
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "revocation check failed")
	}
	if revoked {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
	}

	return &middleware.JWTClaims{
		UserID:   claims.UserID,
		Username: claims.Username,
		TokenID:  claims.ID,
	}, nil
}
