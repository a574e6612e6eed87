package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/blog"
)

// defaultSystemPrompt instructs the model to answer only from the grounding
// block seeded into each conversation.
const defaultSystemPrompt = `You are the assistant for this blog. Answer questions using only the ` +
	`published posts listed at the start of the conversation. If the answer is not covered by ` +
	`those posts, say so briefly instead of guessing. Keep answers concise.`

// groundingPreamble opens the seeded context message.
const groundingPreamble = "These are the blog's published posts:"

// Completer is the outbound completion capability. Implementations must
// bound the call with a timeout and classify failures as *CompletionError.
//
// Interfaces are defined by the consumer: the orchestrator declares what it
// needs, GenkitCompleter satisfies it in production, stubs satisfy it in tests.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// PostCatalog supplies published posts for grounding. Satisfied by
// *blog.Store in production.
type PostCatalog interface {
	Published(ctx context.Context, limit int) ([]blog.Post, error)
}

// ClientMeta carries the request metadata the fingerprint is derived from.
type ClientMeta struct {
	Addr     string // forwarded-for or remote address
	Agent    string // user agent
	Language string // accept-language
}

// Config contains all required parameters for the Orchestrator.
type Config struct {
	Conversations *ConversationStore
	Usage         *UsageLedger
	Catalog       PostCatalog
	Completer     Completer
	Logger        *slog.Logger

	MaxQuestionWords  int // reject questions with more words than this
	MaxPerClient      int // completion requests allowed per fingerprint
	MaxHistoryTurns   int // user/assistant turn pairs retained after pruning
	MaxGroundingPosts int // published posts included in the grounding block

	// SystemPrompt overrides the default model instructions (empty = default).
	SystemPrompt string
}

func (cfg Config) validate() error {
	if cfg.Conversations == nil {
		return errors.New("conversation store is required")
	}
	if cfg.Usage == nil {
		return errors.New("usage ledger is required")
	}
	if cfg.Catalog == nil {
		return errors.New("post catalog is required")
	}
	if cfg.Completer == nil {
		return errors.New("completer is required")
	}
	if cfg.MaxQuestionWords <= 0 {
		return errors.New("max question words must be positive")
	}
	if cfg.MaxPerClient <= 0 {
		return errors.New("max completions per client must be positive")
	}
	if cfg.MaxHistoryTurns <= 0 {
		return errors.New("max history turns must be positive")
	}
	if cfg.MaxGroundingPosts <= 0 {
		return errors.New("max grounding posts must be positive")
	}
	return nil
}

// Orchestrator coordinates one chat request: validate, charge quota, ground,
// complete, record. It is stateless between requests beyond what the two
// stores hold, so a single instance serves all handlers concurrently.
type Orchestrator struct {
	conversations *ConversationStore
	usage         *UsageLedger
	catalog       PostCatalog
	completer     Completer
	logger        *slog.Logger

	maxQuestionWords  int
	maxPerClient      int
	maxHistoryTurns   int
	maxGroundingPosts int
	systemPrompt      string
}

// New creates an Orchestrator from the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &Orchestrator{
		conversations:     cfg.Conversations,
		usage:             cfg.Usage,
		catalog:           cfg.Catalog,
		completer:         cfg.Completer,
		logger:            logger,
		maxQuestionWords:  cfg.MaxQuestionWords,
		maxPerClient:      cfg.MaxPerClient,
		maxHistoryTurns:   cfg.MaxHistoryTurns,
		maxGroundingPosts: cfg.MaxGroundingPosts,
		systemPrompt:      systemPrompt,
	}, nil
}

// Ask answers one question within the conversation identified by
// sessionToken.
//
// Validation happens before the quota check, so malformed input never
// consumes quota. A completion failure is returned after the question has
// been appended to history — the question is deliberately not rolled back, so
// a retry after a transient failure keeps its context. Quota consumed by a
// request that later fails downstream stays consumed.
func (o *Orchestrator) Ask(ctx context.Context, sessionToken, question string, meta ClientMeta) (string, error) {
	// Step 1: validate input.
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if words := len(strings.Fields(question)); words > o.maxQuestionWords {
		return "", fmt.Errorf("%w: %d words (limit %d)", ErrQuestionTooLong, words, o.maxQuestionWords)
	}
	sessionID, err := uuid.Parse(strings.TrimSpace(sessionToken))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	// Step 2: charge the quota. Fails before any catalog or store access.
	fp := Fingerprint(meta.Addr, meta.Agent, meta.Language)
	if err := o.usage.CheckAndIncrement(fp, o.maxPerClient); err != nil {
		o.logger.Warn("chat quota exceeded", "fingerprint", fp, "session", sessionID)
		return "", err
	}

	// Step 3: build the grounding block from published posts.
	posts, err := o.catalog.Published(ctx, o.maxGroundingPosts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	// Step 4: seed, prune, append, assemble the outbound prompt.
	o.conversations.SeedIfEmpty(sessionID, SystemMessage(groundingBlock(posts)))
	o.conversations.Prune(sessionID, true, o.maxHistoryTurns)
	o.conversations.Append(sessionID, UserMessage(question))

	history := o.conversations.History(sessionID)
	outbound := make([]Message, 0, 1+len(history))
	outbound = append(outbound, SystemMessage(o.systemPrompt))
	outbound = append(outbound, history...)

	// Step 5: call the completion capability outside any store lock.
	answer, err := o.completer.Complete(ctx, outbound)
	if err != nil {
		if _, ok := AsCompletionError(err); ok {
			return "", err
		}
		return "", &CompletionError{Kind: CompletionRejected, Err: err}
	}

	// Step 6: record the answer.
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", &CompletionError{Kind: CompletionEmptyAnswer}
	}
	o.conversations.Append(sessionID, AssistantMessage(answer))
	o.conversations.Prune(sessionID, true, o.maxHistoryTurns)

	o.logger.Debug("chat turn completed",
		"session", sessionID,
		"question_words", len(strings.Fields(question)),
		"history_len", len(history)+1,
	)
	return answer, nil
}

// groundingBlock formats published posts into the one-time context message:
// one compact line per post joined under a short preamble.
func groundingBlock(posts []blog.Post) string {
	var b strings.Builder
	b.WriteString(groundingPreamble)
	if len(posts) == 0 {
		b.WriteString("\n(no published posts yet)")
		return b.String()
	}
	for _, p := range posts {
		b.WriteString("\n")
		b.WriteString(postLine(p))
	}
	return b.String()
}

// postLine renders one post as a single line: title, author display name,
// optional tag list, summary, and identifiers.
func postLine(p blog.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %q by %s", p.Title, p.Author.DisplayName())
	if len(p.Tags) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(p.Tags, ", "))
	}
	if s := strings.TrimSpace(p.Summary); s != "" {
		b.WriteString(": ")
		b.WriteString(s)
	}
	fmt.Fprintf(&b, " (id=%s, slug=%s)", p.ID, p.Slug)
	return b.String()
}
