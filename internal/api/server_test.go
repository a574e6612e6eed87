package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quillhq/quill/internal/auth"
)

func newTestServer(t *testing.T, mutate func(*ServerConfig)) *Server {
	t.Helper()
	cfg := ServerConfig{
		Logger: discardLogger(),
		Chat:   &stubAsker{answer: "ok"},
		Blog:   testBlogData(),
		IsDev:  true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

func TestNewServer_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
	}{
		{
			name: "missing chat orchestrator",
			cfg:  ServerConfig{Blog: &stubBlog{}},
		},
		{
			name: "missing blog store",
			cfg:  ServerConfig{Chat: &stubAsker{}},
		},
		{
			name: "auth without verifier",
			cfg:  ServerConfig{Chat: &stubAsker{}, Blog: &stubBlog{}, Auth: &stubAuthService{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewServer(tt.cfg); err == nil {
				t.Error("NewServer() error = nil, want error")
			}
		})
	}
}

func TestServer_HealthProbes(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/health", "/ready"} {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestServer_HealthBypassesRateLimit(t *testing.T) {
	srv := newTestServer(t, func(cfg *ServerConfig) {
		cfg.RateRPS = 0.001
		cfg.RateBurst = 1
	})

	// Exhaust the API rate limit.
	for range 3 {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
		r.RemoteAddr = "10.0.0.9:1234"
		srv.Handler().ServeHTTP(httptest.NewRecorder(), r)
	}

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.RemoteAddr = "10.0.0.9:1234"
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d (probes must not be rate limited)", w.Code, http.StatusOK)
	}
}

func TestServer_PublicRoutes(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{method: http.MethodGet, path: "/api/v1/posts", wantStatus: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/posts/first-post", wantStatus: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/tags", wantStatus: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/authors", wantStatus: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/authors/ada-chen", wantStatus: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/nothing-here", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestServer_ChatRoute(t *testing.T) {
	srv := newTestServer(t, nil)

	body := `{"session_id":"b2fca7b6-3ab2-4d70-9f2b-0c6d3bfa30a2","question":"hi"}`
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestServer_MutationsRequireAuth(t *testing.T) {
	srv := newTestServer(t, func(cfg *ServerConfig) {
		cfg.Auth = &stubAuthService{}
		cfg.Verifier = &stubVerifier{err: auth.ErrInvalidToken}
	})

	tests := []struct {
		method string
		path   string
	}{
		{method: http.MethodPost, path: "/api/v1/posts"},
		{method: http.MethodPut, path: "/api/v1/posts/22222222-2222-2222-2222-222222222222"},
		{method: http.MethodDelete, path: "/api/v1/posts/22222222-2222-2222-2222-222222222222"},
		{method: http.MethodDelete, path: "/api/v1/comments/33333333-3333-3333-3333-333333333333"},
		{method: http.MethodPost, path: "/api/v1/authors"},
		{method: http.MethodGet, path: "/api/v1/me"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`)))

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestServer_MutationsAbsentWithoutAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	// With auth disabled the mutation routes are never registered, so the
	// mux answers 405 for known paths with other methods.
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(`{}`)))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestServer_SecurityHeaders(t *testing.T) {
	srv := newTestServer(t, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", got, "DENY")
	}
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID not set")
	}
}

func TestServer_RateLimitReturns429(t *testing.T) {
	srv := newTestServer(t, func(cfg *ServerConfig) {
		cfg.RateRPS = 0.001
		cfg.RateBurst = 1
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	r.RemoteAddr = "10.1.1.1:5555"
	srv.Handler().ServeHTTP(httptest.NewRecorder(), r)

	r = httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	r.RemoteAddr = "10.1.1.1:5555"
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestServer_ChatNotRateLimited(t *testing.T) {
	srv := newTestServer(t, func(cfg *ServerConfig) {
		cfg.RateRPS = 0.001
		cfg.RateBurst = 1
	})

	// Drain the IP's bucket on a blog route.
	for range 3 {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
		r.RemoteAddr = "10.1.1.1:5555"
		srv.Handler().ServeHTTP(httptest.NewRecorder(), r)
	}

	// Chat quota is the ledger's job; the IP gate must not apply.
	for i := range 3 {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
			strings.NewReader(`{"question":"what is quill?"}`))
		r.RemoteAddr = "10.1.1.1:5555"
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("chat request %d status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
}
