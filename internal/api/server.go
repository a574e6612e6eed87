package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Chat        asker         // Required: the chat orchestrator
	Blog        blogStore     // Required: post/comment/tag/author storage
	Auth        authService   // Optional: nil disables login and admin mutations
	Verifier    tokenVerifier // Required when Auth is set: bearer token verification
	Images      imageStore    // Optional: nil disables image upload/serving
	Pool        *pgxpool.Pool // Optional: nil disables the DB ping in /ready
	CORSOrigins []string      // Allowed origins for CORS
	IsDev       bool          // Disables HSTS (plain HTTP during development)
	TrustProxy  bool          // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateRPS     float64       // Rate limiter refill per IP (0 = default 10/sec)
	RateBurst   int           // Rate limiter burst per IP (0 = default 20)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errors.New("chat orchestrator is required")
	}
	if cfg.Blog == nil {
		return nil, errors.New("blog store is required")
	}
	if cfg.Auth != nil && cfg.Verifier == nil {
		return nil, errors.New("token verifier is required when auth is enabled")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{orchestrator: cfg.Chat, trustProxy: cfg.TrustProxy, logger: logger}
	bh := &blogHandler{store: cfg.Blog, logger: logger}

	mux := http.NewServeMux()

	// Chat
	mux.HandleFunc("POST /api/v1/chat", ch.ask)

	// Public blog reads
	mux.HandleFunc("GET /api/v1/posts", bh.listPosts)
	mux.HandleFunc("GET /api/v1/posts/{slug}", bh.getPost)
	mux.HandleFunc("GET /api/v1/posts/{id}/comments", bh.listComments)
	mux.HandleFunc("POST /api/v1/posts/{id}/comments", bh.createComment)
	mux.HandleFunc("GET /api/v1/tags", bh.listTags)
	mux.HandleFunc("GET /api/v1/authors", bh.listAuthors)
	mux.HandleFunc("GET /api/v1/authors/{slug}", bh.getAuthor)

	// Login and admin mutations — only when auth is configured. Without it
	// the server is read-only plus chat, which suits previews and demos.
	if cfg.Auth != nil {
		ah := &authHandler{service: cfg.Auth, logger: logger}
		mux.HandleFunc("POST /api/v1/auth/login", ah.login)

		guard := requireAuth(cfg.Verifier, logger)
		mux.Handle("GET /api/v1/me", guard(http.HandlerFunc(ah.me)))
		mux.Handle("POST /api/v1/posts", guard(http.HandlerFunc(bh.createPost)))
		mux.Handle("PUT /api/v1/posts/{id}", guard(http.HandlerFunc(bh.updatePost)))
		mux.Handle("DELETE /api/v1/posts/{id}", guard(http.HandlerFunc(bh.deletePost)))
		mux.Handle("DELETE /api/v1/comments/{id}", guard(http.HandlerFunc(bh.deleteComment)))
		mux.Handle("POST /api/v1/authors", guard(http.HandlerFunc(bh.createAuthor)))

		if cfg.Images != nil {
			ih := &imageHandler{store: cfg.Images, logger: logger}
			mux.Handle("POST /api/v1/images", guard(http.HandlerFunc(ih.upload)))
			mux.Handle("DELETE /api/v1/images/{name}", guard(http.HandlerFunc(ih.remove)))
		}
	}

	if cfg.Images != nil {
		ih := &imageHandler{store: cfg.Images, logger: logger}
		mux.HandleFunc("GET /images/{name}", ih.serve)
	}

	// Per-IP token bucket over the blog routes. Chat is exempt: the usage
	// ledger already bounds it per client, and stacking an IP gate on top
	// would lock out readers sharing a NAT.
	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}
	rl := newIPLimiter(rps, burst)
	rl.exemptPath("/api/v1/chat")

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Top-level mux keeps health probes outside the middleware stack so
	// orchestration checks are never rate limited.
	topMux := http.NewServeMux()
	topMux.Handle("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
