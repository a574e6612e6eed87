package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Supported social login providers.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// ErrProviderRejected indicates the provider did not accept the access token.
var ErrProviderRejected = errors.New("provider rejected access token")

// Identity is a verified social login identity.
type Identity struct {
	Provider    string
	Subject     string // provider-scoped stable user ID
	Email       string
	DisplayName string
}

// Verifier exchanges a provider access token for a verified identity.
type Verifier interface {
	VerifyToken(ctx context.Context, accessToken string) (Identity, error)
}

const userinfoTimeout = 10 * time.Second

// googleUserinfoURL is the OpenID Connect userinfo endpoint.
const googleUserinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// githubUserURL is the authenticated-user endpoint.
const githubUserURL = "https://api.github.com/user"

// GoogleVerifier validates Google access tokens against the userinfo
// endpoint.
type GoogleVerifier struct {
	client  *http.Client
	baseURL string
}

// NewGoogleVerifier creates a Google verifier. baseURL overrides the
// userinfo endpoint; pass "" for production.
func NewGoogleVerifier(client *http.Client, baseURL string) *GoogleVerifier {
	if client == nil {
		client = &http.Client{Timeout: userinfoTimeout}
	}
	if baseURL == "" {
		baseURL = googleUserinfoURL
	}
	return &GoogleVerifier{client: client, baseURL: baseURL}
}

// VerifyToken implements Verifier.
func (v *GoogleVerifier) VerifyToken(ctx context.Context, accessToken string) (Identity, error) {
	var payload struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := fetchUserinfo(ctx, v.client, v.baseURL, accessToken, &payload); err != nil {
		return Identity{}, err
	}
	if payload.Sub == "" {
		return Identity{}, fmt.Errorf("%w: userinfo response missing sub", ErrProviderRejected)
	}
	return Identity{
		Provider:    ProviderGoogle,
		Subject:     payload.Sub,
		Email:       payload.Email,
		DisplayName: payload.Name,
	}, nil
}

// GitHubVerifier validates GitHub access tokens against the user endpoint.
type GitHubVerifier struct {
	client  *http.Client
	baseURL string
}

// NewGitHubVerifier creates a GitHub verifier. baseURL overrides the user
// endpoint; pass "" for production.
func NewGitHubVerifier(client *http.Client, baseURL string) *GitHubVerifier {
	if client == nil {
		client = &http.Client{Timeout: userinfoTimeout}
	}
	if baseURL == "" {
		baseURL = githubUserURL
	}
	return &GitHubVerifier{client: client, baseURL: baseURL}
}

// VerifyToken implements Verifier.
func (v *GitHubVerifier) VerifyToken(ctx context.Context, accessToken string) (Identity, error) {
	var payload struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := fetchUserinfo(ctx, v.client, v.baseURL, accessToken, &payload); err != nil {
		return Identity{}, err
	}
	if payload.ID == 0 {
		return Identity{}, fmt.Errorf("%w: user response missing id", ErrProviderRejected)
	}
	name := payload.Name
	if name == "" {
		name = payload.Login
	}
	return Identity{
		Provider:    ProviderGitHub,
		Subject:     strconv.FormatInt(payload.ID, 10),
		Email:       payload.Email,
		DisplayName: name,
	}, nil
}

// fetchUserinfo performs the authenticated GET common to both providers and
// decodes the JSON body into out.
func fetchUserinfo(ctx context.Context, client *http.Client, url, accessToken string, out any) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrProviderRejected)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling userinfo endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading userinfo response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding userinfo response: %w", err)
	}
	return nil
}
