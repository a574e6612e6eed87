// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.quill/config.yaml or ./config.yaml)
//  3. Default values
//
// Security: sensitive values (database password, JWT secret, OAuth client
// secrets) are masked in MarshalJSON and String. Validation lives in
// validation.go and returns sentinel errors checkable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxTokens indicates the max output tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max output tokens")

	// ErrInvalidChatLimits indicates a chat tunable is out of range.
	ErrInvalidChatLimits = errors.New("invalid chat limits")

	// ErrInvalidServerAddr indicates the HTTP listen address is invalid.
	ErrInvalidServerAddr = errors.New("invalid server address")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingJWTSecret indicates the JWT signing secret is not set.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrInvalidJWTSecret indicates the JWT signing secret is too short.
	ErrInvalidJWTSecret = errors.New("invalid JWT secret")

	// ErrInvalidUpload indicates the image upload configuration is invalid.
	ErrInvalidUpload = errors.New("invalid upload configuration")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// ChatConfig holds the conversation engine tunables.
type ChatConfig struct {
	// SessionTTL is how long an idle conversation survives before eviction.
	SessionTTL time.Duration `mapstructure:"session_ttl" json:"session_ttl"`
	// UsageTTL is how long an idle usage entry survives before eviction.
	UsageTTL time.Duration `mapstructure:"usage_ttl" json:"usage_ttl"`
	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval" json:"sweep_interval"`
	// CompletionTimeout bounds one model call.
	CompletionTimeout time.Duration `mapstructure:"completion_timeout" json:"completion_timeout"`

	// MaxHistoryTurns is the number of retained turn pairs per conversation.
	MaxHistoryTurns int `mapstructure:"max_history_turns" json:"max_history_turns"`
	// MaxGroundingPosts caps the posts embedded in the grounding context.
	MaxGroundingPosts int `mapstructure:"max_grounding_posts" json:"max_grounding_posts"`
	// MaxQuestionWords caps question length.
	MaxQuestionWords int `mapstructure:"max_question_words" json:"max_question_words"`
	// MaxCompletionsPerClient caps completions per client fingerprint.
	MaxCompletionsPerClient int `mapstructure:"max_completions_per_client" json:"max_completions_per_client"`
}

// OAuthProviderConfig holds one social login provider's credentials.
type OAuthProviderConfig struct {
	ClientID     string `mapstructure:"client_id" json:"client_id"`
	ClientSecret string `mapstructure:"client_secret" json:"client_secret"` // SENSITIVE: masked in MarshalJSON
}

// MarshalJSON masks the client secret.
func (o OAuthProviderConfig) MarshalJSON() ([]byte, error) {
	type alias OAuthProviderConfig
	a := alias(o)
	a.ClientSecret = maskSecret(a.ClientSecret)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal oauth config: %w", err)
	}
	return data, nil
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider        string `mapstructure:"provider" json:"provider"`     // "gemini" (default), "openai"
	ModelName       string `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "gpt-4o"
	MaxOutputTokens int    `mapstructure:"max_output_tokens" json:"max_output_tokens"`

	// Chat engine tunables
	Chat ChatConfig `mapstructure:"chat" json:"chat"`

	// HTTP server configuration
	LogLevel       string   `mapstructure:"log_level" json:"log_level"` // debug|info|warn|error
	ServerAddr     string   `mapstructure:"server_addr" json:"server_addr"`
	CORSOrigins    []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy     bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Auth configuration
	JWTSecret string        `mapstructure:"jwt_secret" json:"jwt_secret"` // SENSITIVE: masked in MarshalJSON
	JWTTTL    time.Duration `mapstructure:"jwt_ttl" json:"jwt_ttl"`
	Google    OAuthProviderConfig `mapstructure:"google" json:"google"`
	GitHub    OAuthProviderConfig `mapstructure:"github" json:"github"`

	// Image upload configuration
	UploadDir      string `mapstructure:"upload_dir" json:"upload_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" json:"max_upload_bytes"`

	// Observability configuration (see observability.go)
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".quill")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("max_output_tokens", 1024)

	// Chat defaults
	viper.SetDefault("chat.session_ttl", "1h")
	viper.SetDefault("chat.usage_ttl", "24h")
	viper.SetDefault("chat.sweep_interval", "5m")
	viper.SetDefault("chat.completion_timeout", "30s")
	viper.SetDefault("chat.max_history_turns", 15)
	viper.SetDefault("chat.max_grounding_posts", 20)
	viper.SetDefault("chat.max_question_words", 100)
	viper.SetDefault("chat.max_completions_per_client", 20)

	// Server defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server_addr", ":8080")
	viper.SetDefault("cors_origins", []string{"http://localhost:4200"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_limit_rps", 10.0)
	viper.SetDefault("rate_limit_burst", 20)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "quill")
	viper.SetDefault("postgres_password", "quill_dev_password")
	viper.SetDefault("postgres_db_name", "quill")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Auth defaults
	viper.SetDefault("jwt_ttl", "12h")

	// Upload defaults
	viper.SetDefault("upload_dir", "uploads")
	viper.SetDefault("max_upload_bytes", int64(5<<20))

	// Telemetry defaults
	viper.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	viper.SetDefault("telemetry.environment", "dev")
	viper.SetDefault("telemetry.service_name", "quill")
}

// bindEnvVariables binds secret-bearing environment variables explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; Validate()
// checks its presence based on the selected provider.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("jwt_secret", "QUILL_JWT_SECRET")
	mustBind("google.client_id", "QUILL_GOOGLE_CLIENT_ID")
	mustBind("google.client_secret", "QUILL_GOOGLE_CLIENT_SECRET")
	mustBind("github.client_id", "QUILL_GITHUB_CLIENT_ID")
	mustBind("github.client_secret", "QUILL_GITHUB_CLIENT_SECRET")

	mustBind("log_level", "QUILL_LOG_LEVEL")
	mustBind("server_addr", "QUILL_SERVER_ADDR")
	mustBind("cors_origins", "QUILL_CORS_ORIGINS")
	mustBind("trust_proxy", "QUILL_TRUST_PROXY")
	mustBind("upload_dir", "QUILL_UPLOAD_DIR")

	mustBind("provider", "QUILL_PROVIDER")
	mustBind("model_name", "QUILL_MODEL_NAME")

	mustBind("telemetry.otlp_endpoint", "QUILL_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid accidental substring matches against the
// real secret.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars or
// fewer are fully masked; longer secrets show the first and last 2 chars.
// This defends against accidental logging, not compromised logs — rotate
// secrets if logs leak.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Masked fields: PostgresPassword, JWTSecret, and the OAuth client secrets
// (via OAuthProviderConfig.MarshalJSON).
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.JWTSecret = maskSecret(a.JWTSecret)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
