package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/chat"
)

// stubAsker satisfies asker, recording the last call.
type stubAsker struct {
	answer      string
	err         error
	lastSession string
	lastMeta    chat.ClientMeta
}

func (a *stubAsker) Ask(_ context.Context, sessionToken, _ string, meta chat.ClientMeta) (string, error) {
	a.lastSession = sessionToken
	a.lastMeta = meta
	if a.err != nil {
		return "", a.err
	}
	return a.answer, nil
}

func newChatRequest(t *testing.T, sessionID, question string) *http.Request {
	t.Helper()
	body, err := json.Marshal(askRequest{SessionID: sessionID, Question: question})
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(string(body)))
	r.RemoteAddr = "198.51.100.7:54321"
	return r
}

func TestChatHandler_Ask(t *testing.T) {
	a := &stubAsker{answer: "the answer"}
	h := &chatHandler{orchestrator: a, logger: discardLogger()}

	sessionID := uuid.New().String()
	w := httptest.NewRecorder()
	h.ask(w, newChatRequest(t, sessionID, "what is this blog about?"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}

	var resp askResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if resp.Answer != "the answer" {
		t.Errorf("answer = %q, want %q", resp.Answer, "the answer")
	}
	if resp.SessionID != sessionID {
		t.Errorf("session_id = %q, want %q", resp.SessionID, sessionID)
	}
	if a.lastSession != sessionID {
		t.Errorf("orchestrator received session %q, want %q", a.lastSession, sessionID)
	}
}

func TestChatHandler_ClientMeta(t *testing.T) {
	a := &stubAsker{answer: "ok"}
	h := &chatHandler{orchestrator: a, trustProxy: true, logger: discardLogger()}

	r := newChatRequest(t, uuid.New().String(), "hello")
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.Header.Set("User-Agent", "quill-test/1.0")
	r.Header.Set("Accept-Language", "en-US")

	h.ask(httptest.NewRecorder(), r)

	if a.lastMeta.Addr != "203.0.113.9" {
		t.Errorf("meta.Addr = %q, want %q", a.lastMeta.Addr, "203.0.113.9")
	}
	if a.lastMeta.Agent != "quill-test/1.0" {
		t.Errorf("meta.Agent = %q, want %q", a.lastMeta.Agent, "quill-test/1.0")
	}
	if a.lastMeta.Language != "en-US" {
		t.Errorf("meta.Language = %q, want %q", a.lastMeta.Language, "en-US")
	}
}

func TestChatHandler_IgnoresForwardedForWithoutProxy(t *testing.T) {
	a := &stubAsker{answer: "ok"}
	h := &chatHandler{orchestrator: a, trustProxy: false, logger: discardLogger()}

	r := newChatRequest(t, uuid.New().String(), "hello")
	r.Header.Set("X-Forwarded-For", "203.0.113.9")

	h.ask(httptest.NewRecorder(), r)

	if a.lastMeta.Addr != "198.51.100.7" {
		t.Errorf("meta.Addr = %q, want %q (RemoteAddr without proxy trust)", a.lastMeta.Addr, "198.51.100.7")
	}
}

func TestChatHandler_InvalidBody(t *testing.T) {
	h := &chatHandler{orchestrator: &stubAsker{}, logger: discardLogger()}

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ask(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestChatHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "empty question",
			err:        chat.ErrEmptyQuestion,
			wantStatus: http.StatusBadRequest,
			wantCode:   "empty_question",
		},
		{
			name:       "question too long",
			err:        chat.ErrQuestionTooLong,
			wantStatus: http.StatusBadRequest,
			wantCode:   "question_too_long",
		},
		{
			name:       "invalid session",
			err:        chat.ErrInvalidSession,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_session",
		},
		{
			name:       "quota exceeded",
			err:        chat.ErrQuotaExceeded,
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "quota_exceeded",
		},
		{
			name:       "catalog unavailable",
			err:        chat.ErrCatalogUnavailable,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "catalog_unavailable",
		},
		{
			name:       "completion timeout",
			err:        &chat.CompletionError{Kind: chat.CompletionTimeout, Err: context.DeadlineExceeded},
			wantStatus: http.StatusBadGateway,
			wantCode:   "completion_timeout",
		},
		{
			name:       "completion empty answer",
			err:        &chat.CompletionError{Kind: chat.CompletionEmptyAnswer},
			wantStatus: http.StatusBadGateway,
			wantCode:   "completion_empty_answer",
		},
		{
			name:       "unclassified error",
			err:        errors.New("surprise"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &chatHandler{orchestrator: &stubAsker{err: tt.err}, logger: discardLogger()}

			w := httptest.NewRecorder()
			h.ask(w, newChatRequest(t, uuid.New().String(), "hello"))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshaling error body: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", body.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestChatHandler_QuotaSetsRetryAfter(t *testing.T) {
	h := &chatHandler{orchestrator: &stubAsker{err: chat.ErrQuotaExceeded}, logger: discardLogger()}

	w := httptest.NewRecorder()
	h.ask(w, newChatRequest(t, uuid.New().String(), "hello"))

	if got := w.Header().Get("Retry-After"); got != "3600" {
		t.Errorf("Retry-After = %q, want %q", got, "3600")
	}
}
