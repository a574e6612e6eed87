package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. API key (the chat engine needs a model provider)
	switch c.Provider {
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	default:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	}

	// 2. Model configuration
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.MaxOutputTokens < 1 || c.MaxOutputTokens > 65536 {
		return fmt.Errorf("%w: must be between 1 and 65,536, got %d", ErrInvalidMaxTokens, c.MaxOutputTokens)
	}

	// 3. Chat tunables
	if err := c.Chat.validate(); err != nil {
		return err
	}

	// 4. HTTP server
	if c.ServerAddr == "" {
		return fmt.Errorf("%w: server_addr cannot be empty", ErrInvalidServerAddr)
	}

	// 5. PostgreSQL
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "quill_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password for production deployments")
	}
	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only - deprecated allow/prefer are MITM vulnerable.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 6. Auth
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: set QUILL_JWT_SECRET", ErrMissingJWTSecret)
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("%w: must be at least 32 characters (got %d)", ErrInvalidJWTSecret, len(c.JWTSecret))
	}

	// 7. Uploads
	if c.UploadDir == "" {
		return fmt.Errorf("%w: upload_dir cannot be empty", ErrInvalidUpload)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("%w: max_upload_bytes must be positive, got %d", ErrInvalidUpload, c.MaxUploadBytes)
	}

	return nil
}

// validate range-checks the chat tunables.
func (ch ChatConfig) validate() error {
	if ch.SessionTTL <= 0 {
		return fmt.Errorf("%w: session_ttl must be positive", ErrInvalidChatLimits)
	}
	if ch.UsageTTL <= 0 {
		return fmt.Errorf("%w: usage_ttl must be positive", ErrInvalidChatLimits)
	}
	if ch.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep_interval must be positive", ErrInvalidChatLimits)
	}
	if ch.CompletionTimeout <= 0 {
		return fmt.Errorf("%w: completion_timeout must be positive", ErrInvalidChatLimits)
	}
	if ch.MaxHistoryTurns < 1 || ch.MaxHistoryTurns > 100 {
		return fmt.Errorf("%w: max_history_turns must be between 1 and 100, got %d", ErrInvalidChatLimits, ch.MaxHistoryTurns)
	}
	if ch.MaxGroundingPosts < 1 || ch.MaxGroundingPosts > 200 {
		return fmt.Errorf("%w: max_grounding_posts must be between 1 and 200, got %d", ErrInvalidChatLimits, ch.MaxGroundingPosts)
	}
	if ch.MaxQuestionWords < 1 || ch.MaxQuestionWords > 2000 {
		return fmt.Errorf("%w: max_question_words must be between 1 and 2000, got %d", ErrInvalidChatLimits, ch.MaxQuestionWords)
	}
	if ch.MaxCompletionsPerClient < 1 {
		return fmt.Errorf("%w: max_completions_per_client must be positive", ErrInvalidChatLimits)
	}
	return nil
}
