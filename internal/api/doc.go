// Package api is the HTTP surface of the quill server.
//
// It exposes a JSON API under /api/v1 for posts, comments, tags, authors,
// social login, image upload, and the "ask the blog" chat endpoint, plus
// health/readiness probes for container orchestration.
//
// Requests pass through a middleware chain (recovery, request ID, logging,
// CORS, per-IP rate limiting) before reaching the route handlers. Handlers
// depend on small consumer-defined interfaces so tests can substitute stubs
// without a database or model provider.
package api
