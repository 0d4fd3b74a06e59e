package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/teledrop/teledrop/internal/logger"
	"github.com/teledrop/teledrop/pkg/models"
	"github.com/teledrop/teledrop/pkg/store"
)

// ErrInvalidCredentials covers both an unknown username and a wrong password
// so the login endpoint cannot be used to probe for the operator name.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service authenticates the single configured operator, either interactively
// (username and password exchanged for a token pair) or via API keys for
// scripts and CLI clients.
type Service struct {
	jwt   *JWTService
	store *store.Store

	username     string
	passwordHash string
}

// NewService builds the auth service. passwordHash is the bcrypt hash of the
// operator password as produced by `teledrop init`.
func NewService(jwt *JWTService, st *store.Store, username, passwordHash string) *Service {
	return &Service{
		jwt:          jwt,
		store:        st,
		username:     username,
		passwordHash: passwordHash,
	}
}

// JWT exposes the token service for middleware wiring.
func (s *Service) JWT() *JWTService {
	return s.jwt
}

// Login verifies the operator credentials and issues a token pair.
func (s *Service) Login(username, password string) (*TokenPair, error) {
	if username != s.username {
		// Burn a bcrypt comparison anyway so the timing does not reveal
		// whether the username matched.
		_ = bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.jwt.GenerateTokenPair(s.username)
}

// Refresh exchanges a valid refresh token for a fresh token pair.
func (s *Service) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	return s.jwt.GenerateTokenPair(claims.Identity)
}

// ResolveAPIKey resolves a presented API key to the operator identity.
// Keys carry the td_ prefix; the stored digest is compared in constant time.
// A resolved key has its last_used_at bumped best-effort.
func (s *Service) ResolveAPIKey(ctx context.Context, raw string) (string, error) {
	if !strings.HasPrefix(raw, models.APIKeyPrefix) {
		return "", models.ErrAPIKeyInvalid
	}

	key, err := s.store.GetAPIKeyByHash(ctx, models.HashAPIKey(raw))
	if err != nil {
		if errors.Is(err, models.ErrAPIKeyNotFound) {
			return "", models.ErrAPIKeyInvalid
		}
		return "", err
	}
	if !key.Matches(raw) {
		return "", models.ErrAPIKeyInvalid
	}

	if err := s.store.TouchAPIKey(ctx, key.ID, time.Now().UTC()); err != nil {
		logger.Warn("failed to record API key use", "key_id", key.ID, "error", err)
	}
	return s.username, nil
}
