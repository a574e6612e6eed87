package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/quillhq/quill/internal/chat"
)

// quotaRetryAfter is the Retry-After value (seconds) sent with 429 responses
// from the chat quota. Usage counters reset on a daily TTL, so an hour is a
// reasonable hint without exposing the exact window.
const quotaRetryAfter = 3600

// maxChatBody bounds the chat request body size.
const maxChatBody = 64 << 10

// asker answers a visitor question within a session.
// Satisfied by *chat.Orchestrator.
type asker interface {
	Ask(ctx context.Context, sessionToken, question string, meta chat.ClientMeta) (string, error)
}

// chatHandler serves the "ask the blog" endpoint.
type chatHandler struct {
	orchestrator asker
	trustProxy   bool
	logger       *slog.Logger
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type askResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// ask handles POST /api/v1/chat.
func (h *chatHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	meta := chat.ClientMeta{
		Addr:     clientIP(r, h.trustProxy),
		Agent:    r.UserAgent(),
		Language: r.Header.Get("Accept-Language"),
	}

	answer, err := h.orchestrator.Ask(r.Context(), req.SessionID, req.Question, meta)
	if err != nil {
		h.writeAskError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{SessionID: req.SessionID, Answer: answer}, h.logger)
}

// writeAskError maps orchestrator errors onto HTTP statuses: invalid input is
// the caller's fault (400), an exhausted quota is 429 with a retry hint, a
// failed model completion is an upstream failure (502), and a catalog read
// failure is ours (500).
func (h *chatHandler) writeAskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "empty_question", "question is empty", h.logger)
	case errors.Is(err, chat.ErrQuestionTooLong):
		writeError(w, http.StatusBadRequest, "question_too_long", "question exceeds the word limit", h.logger)
	case errors.Is(err, chat.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, "invalid_session", "session_id must be a UUID", h.logger)
	case errors.Is(err, chat.ErrQuotaExceeded):
		w.Header().Set("Retry-After", strconv.Itoa(quotaRetryAfter))
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", "completion quota exceeded, try again later", h.logger)
	case errors.Is(err, chat.ErrCatalogUnavailable):
		h.logger.Error("post catalog unavailable", "error", err)
		writeError(w, http.StatusInternalServerError, "catalog_unavailable", "could not load posts for grounding", h.logger)
	default:
		if ce, ok := chat.AsCompletionError(err); ok {
			h.logger.Warn("completion failed", "kind", ce.Kind, "error", err)
			writeError(w, http.StatusBadGateway, "completion_"+string(ce.Kind), "the model could not answer", h.logger)
			return
		}
		h.logger.Error("answering question", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}
