package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/auth"
)

// authService exchanges a provider access token for a signed session token.
// Satisfied by *auth.Service.
type authService interface {
	Login(ctx context.Context, provider, accessToken string) (auth.User, string, error)
}

// authHandler serves social login.
type authHandler struct {
	service authService
	logger  *slog.Logger
}

type loginRequest struct {
	Provider    string `json:"provider"`
	AccessToken string `json:"access_token"`
}

type userJSON struct {
	ID       uuid.UUID `json:"id"`
	Provider string    `json:"provider"`
	Email    string    `json:"email,omitempty"`
	Name     string    `json:"name,omitempty"`
}

type loginResponse struct {
	Token string   `json:"token"`
	User  userJSON `json:"user"`
}

// login handles POST /api/v1/auth/login. The client obtains a provider
// access token through its own OAuth flow and trades it here for a quill JWT.
func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	if req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "missing_access_token", "access_token is required", h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), loginTimeout)
	defer cancel()

	user, token, err := h.service.Login(ctx, req.Provider, req.AccessToken)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User: userJSON{
			ID:       user.ID,
			Provider: user.Provider,
			Email:    user.Email,
			Name:     user.DisplayName,
		},
	}, h.logger)
}

// me handles GET /api/v1/me (authenticated). Returns the identity carried by
// the bearer token without a database round trip.
func (h *authHandler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "authorization required", h.logger)
		return
	}

	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, userJSON{
		ID:       userID,
		Provider: claims.Provider,
		Name:     claims.DisplayName,
	}, h.logger)
}

// writeLoginError maps login failures: an unknown provider is the caller's
// mistake, a rejected token means the caller is not who they claim, and a
// provider outage is an upstream failure.
func (h *authHandler) writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "unknown_provider", "unsupported login provider", h.logger)
	case errors.Is(err, auth.ErrProviderRejected):
		writeError(w, http.StatusUnauthorized, "provider_rejected", "the provider rejected the access token", h.logger)
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("login provider timed out", "error", err)
		writeError(w, http.StatusBadGateway, "provider_unavailable", "the login provider did not respond", h.logger)
	default:
		h.logger.Error("logging in", "error", err)
		writeError(w, http.StatusBadGateway, "provider_unavailable", "could not verify the access token", h.logger)
	}
}

// loginTimeout bounds the provider userinfo round trip.
const loginTimeout = 10 * time.Second
