package chat

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"
)

// CompleterConfig configures the Genkit-backed completer.
type CompleterConfig struct {
	Genkit          *genkit.Genkit
	Model           string // provider-qualified model name (e.g. "googleai/gemini-2.5-flash")
	MaxOutputTokens int
	Timeout         time.Duration // hard ceiling on one completion call
	Logger          *slog.Logger
}

// GenkitCompleter implements Completer on top of a Genkit model. Every call
// is bounded by the configured timeout and failures are classified into the
// CompletionError taxonomy so callers never see a raw transport error.
type GenkitCompleter struct {
	g               *genkit.Genkit
	model           string
	maxOutputTokens int
	timeout         time.Duration
	logger          *slog.Logger
}

// NewGenkitCompleter creates a completer from the given configuration.
func NewGenkitCompleter(cfg CompleterConfig) (*GenkitCompleter, error) {
	if cfg.Genkit == nil {
		return nil, errors.New("genkit instance is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("completion timeout must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &GenkitCompleter{
		g:               cfg.Genkit,
		model:           cfg.Model,
		maxOutputTokens: cfg.MaxOutputTokens,
		timeout:         cfg.Timeout,
		logger:          logger,
	}, nil
}

// Complete sends the message sequence to the model and returns its text.
// The leading system message (if any) is passed as the system prompt; the
// rest go out as conversation messages in order.
func (c *GenkitCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var system string
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		system = messages[0].Content
		messages = messages[1:]
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(c.model),
		ai.WithMessages(toAIMessages(messages)...),
	}
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}
	if c.maxOutputTokens > 0 {
		opts = append(opts, ai.WithConfig(&genai.GenerateContentConfig{
			MaxOutputTokens: int32(c.maxOutputTokens),
		}))
	}

	start := time.Now()
	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		kind := classifyCompletionError(err)
		c.logger.Warn("completion call failed",
			"kind", kind,
			"error", err,
			"elapsed", time.Since(start),
		)
		return "", &CompletionError{Kind: kind, Err: err}
	}

	return resp.Text(), nil
}

// toAIMessages converts chat messages to Genkit's message type. The
// assistant role maps to Genkit's "model" role.
func toAIMessages(messages []Message) []*ai.Message {
	out := make([]*ai.Message, len(messages))
	for i, m := range messages {
		role := ai.RoleUser
		switch m.Role {
		case RoleAssistant:
			role = ai.RoleModel
		case RoleSystem:
			role = ai.RoleSystem
		case RoleUser:
			role = ai.RoleUser
		}
		out[i] = &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(m.Content)},
		}
	}
	return out
}

// classifyCompletionError maps a raw Generate error to the completion
// failure taxonomy: deadline expiry is a timeout, transport-level failures
// are unreachable, everything else is a provider rejection.
func classifyCompletionError(err error) CompletionErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return CompletionTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CompletionTimeout
		}
		return CompletionUnreachable
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return CompletionUnreachable
	}

	return CompletionRejected
}
