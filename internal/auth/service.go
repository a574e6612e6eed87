package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnknownProvider indicates the login request named a provider the
// service has no verifier for.
var ErrUnknownProvider = errors.New("unknown login provider")

// Service performs the social login exchange: provider access token in,
// signed session JWT out.
type Service struct {
	verifiers map[string]Verifier
	users     *UserStore
	tokens    *TokenManager
	logger    *slog.Logger
}

// NewService creates the auth service. verifiers maps provider names
// (ProviderGoogle, ProviderGitHub) to their token verifiers.
func NewService(verifiers map[string]Verifier, users *UserStore, tokens *TokenManager, logger *slog.Logger) (*Service, error) {
	if len(verifiers) == 0 {
		return nil, fmt.Errorf("at least one verifier is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{verifiers: verifiers, users: users, tokens: tokens, logger: logger}, nil
}

// Login verifies the provider access token, records the user, and issues a
// session JWT for them.
func (s *Service) Login(ctx context.Context, provider, accessToken string) (User, string, error) {
	verifier, ok := s.verifiers[provider]
	if !ok {
		return User{}, "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	identity, err := verifier.VerifyToken(ctx, accessToken)
	if err != nil {
		return User{}, "", err
	}

	user, err := s.users.Upsert(ctx, identity)
	if err != nil {
		return User{}, "", err
	}

	jwt, err := s.tokens.Issue(user.ID, user.Provider, user.DisplayName)
	if err != nil {
		return User{}, "", err
	}

	s.logger.Info("user logged in", "provider", provider, "user", user.ID)
	return user, jwt, nil
}

// Verify validates a session JWT and returns its claims.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	return s.tokens.Verify(tokenString)
}
