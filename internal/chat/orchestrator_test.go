package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/blog"
)

// stubCompleter counts calls and returns a canned answer or error.
type stubCompleter struct {
	calls  atomic.Int64
	answer string
	err    error

	// last holds the messages from the most recent call.
	last []Message
}

func (s *stubCompleter) Complete(_ context.Context, messages []Message) (string, error) {
	s.calls.Add(1)
	s.last = messages
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

type stubCatalog struct {
	posts []blog.Post
	err   error
}

func (s *stubCatalog) Published(context.Context, int) ([]blog.Post, error) {
	return s.posts, s.err
}

func testPosts() []blog.Post {
	return []blog.Post{
		{
			ID:      uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			Slug:    "topic-a",
			Title:   "Topic A",
			Summary: "All about topic A.",
			Author:  blog.Author{FirstName: "Ada", LastName: "Chen"},
			Tags:    []string{"go", "systems"},
		},
		{
			ID:     uuid.MustParse("22222222-2222-2222-2222-222222222222"),
			Slug:   "topic-b",
			Title:  "Topic B",
			Author: blog.Author{Slug: "anonymous-author"},
		},
	}
}

func newTestOrchestrator(t *testing.T, catalog PostCatalog, completer Completer) (*Orchestrator, *ConversationStore, *UsageLedger) {
	t.Helper()
	conversations := NewConversationStore()
	usage := NewUsageLedger()
	o, err := New(Config{
		Conversations:     conversations,
		Usage:             usage,
		Catalog:           catalog,
		Completer:         completer,
		Logger:            discardLogger(),
		MaxQuestionWords:  100,
		MaxPerClient:      5,
		MaxHistoryTurns:   15,
		MaxGroundingPosts: 10,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o, conversations, usage
}

func testMeta() ClientMeta {
	return ClientMeta{Addr: "203.0.113.7", Agent: "test-agent", Language: "en"}
}

func TestNew_ValidatesConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Conversations:     NewConversationStore(),
			Usage:             NewUsageLedger(),
			Catalog:           &stubCatalog{},
			Completer:         &stubCompleter{},
			MaxQuestionWords:  100,
			MaxPerClient:      5,
			MaxHistoryTurns:   15,
			MaxGroundingPosts: 10,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil conversations", func(c *Config) { c.Conversations = nil }},
		{"nil usage", func(c *Config) { c.Usage = nil }},
		{"nil catalog", func(c *Config) { c.Catalog = nil }},
		{"nil completer", func(c *Config) { c.Completer = nil }},
		{"zero question words", func(c *Config) { c.MaxQuestionWords = 0 }},
		{"zero per client", func(c *Config) { c.MaxPerClient = 0 }},
		{"zero history turns", func(c *Config) { c.MaxHistoryTurns = 0 }},
		{"zero grounding posts", func(c *Config) { c.MaxGroundingPosts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New() error = nil, want validation error")
			}
		})
	}

	if _, err := New(valid()); err != nil {
		t.Errorf("New() with valid config error = %v", err)
	}
}

func TestOrchestrator_Ask(t *testing.T) {
	completer := &stubCompleter{answer: "Topic A and B."}
	o, conversations, usage := newTestOrchestrator(t, &stubCatalog{posts: testPosts()}, completer)

	session := uuid.NewString()
	answer, err := o.Ask(context.Background(), session, "What topics are covered?", testMeta())
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer != "Topic A and B." {
		t.Errorf("Ask() = %q, want %q", answer, "Topic A and B.")
	}

	// Stored history: grounding seed, question, answer.
	history := conversations.History(uuid.MustParse(session))
	if len(history) != 3 {
		t.Fatalf("history len = %d, want 3", len(history))
	}
	if history[0].Role != RoleSystem || !strings.HasPrefix(history[0].Content, groundingPreamble) {
		t.Errorf("history[0] = %+v, want grounding system message", history[0])
	}
	if history[1] != UserMessage("What topics are covered?") {
		t.Errorf("history[1] = %+v, want the question", history[1])
	}
	if history[2] != AssistantMessage("Topic A and B.") {
		t.Errorf("history[2] = %+v, want the answer", history[2])
	}

	// Outbound prompt: model instructions first, then the stored history.
	if len(completer.last) != 3 {
		t.Fatalf("outbound len = %d, want 3", len(completer.last))
	}
	if completer.last[0] != SystemMessage(defaultSystemPrompt) {
		t.Errorf("outbound[0] = %+v, want default system prompt", completer.last[0])
	}

	if got := usage.Count(Fingerprint("203.0.113.7", "test-agent", "en")); got != 1 {
		t.Errorf("usage count = %d, want 1", got)
	}
}

func TestOrchestrator_AskValidation(t *testing.T) {
	tests := []struct {
		name     string
		session  string
		question string
		wantErr  error
	}{
		{"empty question", uuid.NewString(), "", ErrEmptyQuestion},
		{"whitespace question", uuid.NewString(), "   \n\t ", ErrEmptyQuestion},
		{"too many words", uuid.NewString(), strings.Repeat("word ", 101), ErrQuestionTooLong},
		{"bad session token", "not-a-uuid", "hello", ErrInvalidSession},
		{"empty session token", "", "hello", ErrInvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &stubCompleter{answer: "unused"}
			o, conversations, usage := newTestOrchestrator(t, &stubCatalog{posts: testPosts()}, completer)

			_, err := o.Ask(context.Background(), tt.session, tt.question, testMeta())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Ask() error = %v, want %v", err, tt.wantErr)
			}

			// Rejected input must not consume quota, touch the store, or
			// reach the model.
			if got := usage.Count(Fingerprint("203.0.113.7", "test-agent", "en")); got != 0 {
				t.Errorf("usage count = %d, want 0", got)
			}
			if got := conversations.Len(); got != 0 {
				t.Errorf("conversations.Len() = %d, want 0", got)
			}
			if got := completer.calls.Load(); got != 0 {
				t.Errorf("completer calls = %d, want 0", got)
			}
		})
	}
}

func TestOrchestrator_AskQuotaExhaustion(t *testing.T) {
	completer := &stubCompleter{answer: "ok"}
	o, _, _ := newTestOrchestrator(t, &stubCatalog{posts: testPosts()}, completer)

	session := uuid.NewString()
	for i := range 5 {
		if _, err := o.Ask(context.Background(), session, "question", testMeta()); err != nil {
			t.Fatalf("Ask() #%d error = %v", i+1, err)
		}
	}

	_, err := o.Ask(context.Background(), session, "one too many", testMeta())
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Ask() error = %v, want ErrQuotaExceeded", err)
	}
	if got := completer.calls.Load(); got != 5 {
		t.Errorf("completer calls = %d, want 5 (over-quota request must not reach the model)", got)
	}
}

func TestOrchestrator_AskCatalogFailure(t *testing.T) {
	completer := &stubCompleter{answer: "unused"}
	catalog := &stubCatalog{err: errors.New("connection refused")}
	o, conversations, usage := newTestOrchestrator(t, catalog, completer)

	_, err := o.Ask(context.Background(), uuid.NewString(), "hello", testMeta())
	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("Ask() error = %v, want ErrCatalogUnavailable", err)
	}

	// The quota was charged before the catalog call and stays charged.
	if got := usage.Count(Fingerprint("203.0.113.7", "test-agent", "en")); got != 1 {
		t.Errorf("usage count = %d, want 1", got)
	}
	if got := conversations.Len(); got != 0 {
		t.Errorf("conversations.Len() = %d, want 0 (no conversation before grounding)", got)
	}
	if got := completer.calls.Load(); got != 0 {
		t.Errorf("completer calls = %d, want 0", got)
	}
}

func TestOrchestrator_AskCompletionFailureKeepsQuestion(t *testing.T) {
	completer := &stubCompleter{err: &CompletionError{Kind: CompletionUnreachable, Err: errors.New("dial tcp: refused")}}
	o, conversations, _ := newTestOrchestrator(t, &stubCatalog{posts: testPosts()}, completer)

	session := uuid.NewString()
	_, err := o.Ask(context.Background(), session, "will this fail?", testMeta())

	var cerr *CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Ask() error = %v, want *CompletionError", err)
	}
	if cerr.Kind != CompletionUnreachable {
		t.Errorf("Kind = %q, want %q", cerr.Kind, CompletionUnreachable)
	}

	// The question stays in history so a retry keeps its context.
	history := conversations.History(uuid.MustParse(session))
	if len(history) != 2 {
		t.Fatalf("history len = %d, want 2 (seed + question)", len(history))
	}
	if history[1] != UserMessage("will this fail?") {
		t.Errorf("history[1] = %+v, want the question", history[1])
	}
}

func TestOrchestrator_AskWrapsUnclassifiedCompleterError(t *testing.T) {
	completer := &stubCompleter{err: errors.New("bare failure")}
	o, _, _ := newTestOrchestrator(t, &stubCatalog{posts: testPosts()}, completer)

	_, err := o.Ask(context.Background(), uuid.NewString(), "hello", testMeta())

	cerr, ok := AsCompletionError(err)
	if !ok {
		t.Fatalf("Ask() error = %v, want *CompletionError", err)
	}
	if cerr.Kind != CompletionRejected {
		t.Errorf("Kind = %q, want %q", cerr.Kind, CompletionRejected)
	}
}

func TestOrchestrator_AskEmptyAnswer(t *testing.T) {
	completer := &stubCompleter{answer: "  \n "}
	o, conversations, _ := newTestOrchestrator(t, &stubCatalog{posts: testPosts()}, completer)

	session := uuid.NewString()
	_, err := o.Ask(context.Background(), session, "anything?", testMeta())

	cerr, ok := AsCompletionError(err)
	if !ok {
		t.Fatalf("Ask() error = %v, want *CompletionError", err)
	}
	if cerr.Kind != CompletionEmptyAnswer {
		t.Errorf("Kind = %q, want %q", cerr.Kind, CompletionEmptyAnswer)
	}

	// No assistant message recorded for a blank answer.
	history := conversations.History(uuid.MustParse(session))
	if len(history) != 2 {
		t.Errorf("history len = %d, want 2 (seed + question)", len(history))
	}
}

func TestOrchestrator_AskSeedsOncePerSession(t *testing.T) {
	completer := &stubCompleter{answer: "fine"}
	o, conversations, _ := newTestOrchestrator(t, &stubCatalog{posts: testPosts()}, completer)

	session := uuid.NewString()
	for range 3 {
		if _, err := o.Ask(context.Background(), session, "again", testMeta()); err != nil {
			t.Fatalf("Ask() error = %v", err)
		}
	}

	seeds := 0
	for _, m := range conversations.History(uuid.MustParse(session)) {
		if m.Role == RoleSystem {
			seeds++
		}
	}
	if seeds != 1 {
		t.Errorf("grounding seeds in history = %d, want 1", seeds)
	}
}

func TestGroundingBlock(t *testing.T) {
	got := groundingBlock(testPosts())

	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("groundingBlock() has %d lines, want 3:\n%s", len(lines), got)
	}
	if lines[0] != groundingPreamble {
		t.Errorf("line 0 = %q, want preamble", lines[0])
	}

	wantA := `- "Topic A" by Ada Chen [go, systems]: All about topic A. ` +
		`(id=11111111-1111-1111-1111-111111111111, slug=topic-a)`
	if lines[1] != wantA {
		t.Errorf("line 1 = %q, want %q", lines[1], wantA)
	}

	// No tags, no summary, and the author falls back to the slug.
	wantB := `- "Topic B" by anonymous-author ` +
		`(id=22222222-2222-2222-2222-222222222222, slug=topic-b)`
	if lines[2] != wantB {
		t.Errorf("line 2 = %q, want %q", lines[2], wantB)
	}
}

func TestGroundingBlock_NoPosts(t *testing.T) {
	got := groundingBlock(nil)
	if !strings.Contains(got, "(no published posts yet)") {
		t.Errorf("groundingBlock(nil) = %q, want empty-catalog notice", got)
	}
}
