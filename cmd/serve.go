package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/api"
	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/blog"
	"github.com/quillhq/quill/internal/chat"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/image"
	"github.com/quillhq/quill/internal/log"
	"github.com/quillhq/quill/internal/observability"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // completion calls can be slow
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quill HTTP server",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port, overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// runServe wires the full application and runs the HTTP server until a
// termination signal arrives.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.ServerAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log_level: %w", err)
	}
	logger := log.New(log.Config{Level: level, JSON: true})
	slog.SetDefault(logger)
	logger.Info("starting quill", "version", Version, "addr", addr)

	if cfg.Telemetry.Enabled {
		shutdownTracing, traceErr := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Environment: cfg.Telemetry.Environment,
			ServiceName: cfg.Telemetry.ServiceName,
		})
		if traceErr != nil {
			return fmt.Errorf("setting up tracing: %w", traceErr)
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer flushCancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Warn("flushing traces", "error", err)
			}
		}()
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	blogStore, err := blog.NewStore(pool, logger.With("component", "blog"))
	if err != nil {
		return fmt.Errorf("creating blog store: %w", err)
	}

	authService, err := buildAuthService(cfg, pool, logger)
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}

	imageStore, err := image.NewStore(cfg.UploadDir, cfg.MaxUploadBytes, logger.With("component", "image"))
	if err != nil {
		return fmt.Errorf("creating image store: %w", err)
	}

	orchestrator, sweeper, err := buildChat(ctx, cfg, blogStore, logger)
	if err != nil {
		return fmt.Errorf("creating chat engine: %w", err)
	}
	sweeper.Start(ctx)

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:      logger.With("component", "api"),
		Chat:        orchestrator,
		Blog:        blogStore,
		Auth:        authService,
		Verifier:    authService,
		Images:      imageStore,
		Pool:        pool,
		CORSOrigins: cfg.CORSOrigins,
		IsDev:       cfg.PostgresSSLMode == "disable",
		TrustProxy:  cfg.TrustProxy,
		RateRPS:     cfg.RateLimitRPS,
		RateBurst:   cfg.RateLimitBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// buildAuthService assembles social login: provider verifiers, the user
// store, and the JWT token manager.
func buildAuthService(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*auth.Service, error) {
	users, err := auth.NewUserStore(pool, logger.With("component", "auth"))
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return nil, err
	}

	verifiers := map[string]auth.Verifier{
		auth.ProviderGoogle: auth.NewGoogleVerifier(nil, ""),
		auth.ProviderGitHub: auth.NewGitHubVerifier(nil, ""),
	}

	return auth.NewService(verifiers, users, tokens, logger.With("component", "auth"))
}

// buildChat assembles the chat engine: genkit with the configured model
// provider, the in-memory stores, the orchestrator, and the sweeper.
func buildChat(ctx context.Context, cfg *config.Config, catalog chat.PostCatalog, logger *slog.Logger) (*chat.Orchestrator, *chat.Sweeper, error) {
	var g *genkit.Genkit
	switch cfg.Provider {
	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
	default:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	}
	if g == nil {
		return nil, nil, fmt.Errorf("initializing genkit with provider %q", cfg.Provider)
	}
	logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.FullModelName())

	completer, err := chat.NewGenkitCompleter(chat.CompleterConfig{
		Genkit:          g,
		Model:           cfg.FullModelName(),
		MaxOutputTokens: cfg.MaxOutputTokens,
		Timeout:         cfg.Chat.CompletionTimeout,
		Logger:          logger.With("component", "completer"),
	})
	if err != nil {
		return nil, nil, err
	}

	conversations := chat.NewConversationStore()
	usage := chat.NewUsageLedger()

	orchestrator, err := chat.New(chat.Config{
		Conversations:     conversations,
		Usage:             usage,
		Catalog:           catalog,
		Completer:         completer,
		Logger:            logger.With("component", "chat"),
		MaxQuestionWords:  cfg.Chat.MaxQuestionWords,
		MaxPerClient:      cfg.Chat.MaxCompletionsPerClient,
		MaxHistoryTurns:   cfg.Chat.MaxHistoryTurns,
		MaxGroundingPosts: cfg.Chat.MaxGroundingPosts,
	})
	if err != nil {
		return nil, nil, err
	}

	sweeper := chat.NewSweeper(chat.SweeperConfig{
		Conversations: conversations,
		Usage:         usage,
		Interval:      cfg.Chat.SweepInterval,
		SessionTTL:    cfg.Chat.SessionTTL,
		UsageTTL:      cfg.Chat.UsageTTL,
		Logger:        logger.With("component", "sweeper"),
	})

	return orchestrator, sweeper, nil
}
