package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/blog"
)

// maxPostBody bounds the post/comment request body size.
const maxPostBody = 1 << 20

// blogStore is the data-layer surface the blog handlers need.
// Satisfied by *blog.Store.
type blogStore interface {
	CreatePost(ctx context.Context, np blog.NewPost) (blog.Post, error)
	UpdatePost(ctx context.Context, id uuid.UUID, up blog.PostUpdate) (blog.Post, error)
	DeletePost(ctx context.Context, id uuid.UUID) error
	PostBySlug(ctx context.Context, slug string) (blog.Post, error)
	Published(ctx context.Context, limit int) ([]blog.Post, error)
	PostsByTag(ctx context.Context, tagSlug string, limit int) ([]blog.Post, error)
	PostsByAuthor(ctx context.Context, authorSlug string, limit int) ([]blog.Post, error)
	CreateAuthor(ctx context.Context, firstName, lastName, bio string) (blog.Author, error)
	AuthorBySlug(ctx context.Context, slug string) (blog.Author, error)
	Authors(ctx context.Context) ([]blog.Author, error)
	AddComment(ctx context.Context, postID uuid.UUID, authorName, body string) (blog.Comment, error)
	Comments(ctx context.Context, postID uuid.UUID) ([]blog.Comment, error)
	DeleteComment(ctx context.Context, id uuid.UUID) error
	Tags(ctx context.Context) ([]blog.Tag, error)
}

// blogHandler serves posts, comments, tags, and authors.
type blogHandler struct {
	store  blogStore
	logger *slog.Logger
}

// JSON shapes. The store types carry no tags, so the wire format is pinned
// down here instead.

type authorJSON struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Bio       string    `json:"bio,omitempty"`
}

type postJSON struct {
	ID        uuid.UUID  `json:"id"`
	Slug      string     `json:"slug"`
	Title     string     `json:"title"`
	Summary   string     `json:"summary"`
	Body      string     `json:"body,omitempty"`
	Author    authorJSON `json:"author"`
	Tags      []string   `json:"tags"`
	Published bool       `json:"published"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type commentJSON struct {
	ID        uuid.UUID `json:"id"`
	PostID    uuid.UUID `json:"post_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type tagJSON struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

func toAuthorJSON(a blog.Author) authorJSON {
	return authorJSON{
		ID:        a.ID,
		Slug:      a.Slug,
		Name:      a.DisplayName(),
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Bio:       a.Bio,
	}
}

// toPostJSON converts a post. Listings omit the body to keep payloads small;
// the detail endpoint includes it.
func toPostJSON(p blog.Post, includeBody bool) postJSON {
	body := ""
	if includeBody {
		body = p.Body
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return postJSON{
		ID:        p.ID,
		Slug:      p.Slug,
		Title:     p.Title,
		Summary:   p.Summary,
		Body:      body,
		Author:    toAuthorJSON(p.Author),
		Tags:      tags,
		Published: p.Published,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toCommentJSON(c blog.Comment) commentJSON {
	return commentJSON{
		ID:        c.ID,
		PostID:    c.PostID,
		Author:    c.AuthorName,
		Body:      c.Body,
		CreatedAt: c.CreatedAt,
	}
}

// listPosts handles GET /api/v1/posts. Optional query parameters: tag and
// author filter by slug, limit caps the result count.
func (h *blogHandler) listPosts(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))

	var (
		posts []blog.Post
		err   error
	)
	switch {
	case r.URL.Query().Get("tag") != "":
		posts, err = h.store.PostsByTag(r.Context(), r.URL.Query().Get("tag"), limit)
	case r.URL.Query().Get("author") != "":
		posts, err = h.store.PostsByAuthor(r.Context(), r.URL.Query().Get("author"), limit)
	default:
		posts, err = h.store.Published(r.Context(), limit)
	}
	if err != nil {
		h.writeStoreError(w, err, "listing posts")
		return
	}

	out := make([]postJSON, len(posts))
	for i, p := range posts {
		out[i] = toPostJSON(p, false)
	}
	writeJSON(w, http.StatusOK, map[string][]postJSON{"posts": out}, h.logger)
}

// getPost handles GET /api/v1/posts/{slug}.
func (h *blogHandler) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.store.PostBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.writeStoreError(w, err, "fetching post")
		return
	}
	writeJSON(w, http.StatusOK, toPostJSON(post, true), h.logger)
}

type createPostRequest struct {
	AuthorID  uuid.UUID `json:"author_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags"`
	Published bool      `json:"published"`
}

// createPost handles POST /api/v1/posts (authenticated).
func (h *blogHandler) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	post, err := h.store.CreatePost(r.Context(), blog.NewPost{
		AuthorID:  req.AuthorID,
		Title:     req.Title,
		Summary:   req.Summary,
		Body:      req.Body,
		Tags:      req.Tags,
		Published: req.Published,
	})
	if err != nil {
		h.writeStoreError(w, err, "creating post")
		return
	}
	writeJSON(w, http.StatusCreated, toPostJSON(post, true), h.logger)
}

type updatePostRequest struct {
	Title     *string  `json:"title"`
	Summary   *string  `json:"summary"`
	Body      *string  `json:"body"`
	Published *bool    `json:"published"`
	Tags      []string `json:"tags"`
}

// updatePost handles PUT /api/v1/posts/{id} (authenticated). Absent fields
// leave the stored values untouched.
func (h *blogHandler) updatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, h.logger)
	if !ok {
		return
	}

	var req updatePostRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	post, err := h.store.UpdatePost(r.Context(), id, blog.PostUpdate{
		Title:     req.Title,
		Summary:   req.Summary,
		Body:      req.Body,
		Published: req.Published,
		Tags:      req.Tags,
	})
	if err != nil {
		h.writeStoreError(w, err, "updating post")
		return
	}
	writeJSON(w, http.StatusOK, toPostJSON(post, true), h.logger)
}

// deletePost handles DELETE /api/v1/posts/{id} (authenticated).
func (h *blogHandler) deletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.store.DeletePost(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "deleting post")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listComments handles GET /api/v1/posts/{id}/comments.
func (h *blogHandler) listComments(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, h.logger)
	if !ok {
		return
	}

	comments, err := h.store.Comments(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "listing comments")
		return
	}

	out := make([]commentJSON, len(comments))
	for i, c := range comments {
		out[i] = toCommentJSON(c)
	}
	writeJSON(w, http.StatusOK, map[string][]commentJSON{"comments": out}, h.logger)
}

type createCommentRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// createComment handles POST /api/v1/posts/{id}/comments. Open to anonymous
// readers; the store rejects comments on drafts.
func (h *blogHandler) createComment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, h.logger)
	if !ok {
		return
	}

	var req createCommentRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	comment, err := h.store.AddComment(r.Context(), id, req.Author, req.Body)
	if err != nil {
		h.writeStoreError(w, err, "adding comment")
		return
	}
	writeJSON(w, http.StatusCreated, toCommentJSON(comment), h.logger)
}

// deleteComment handles DELETE /api/v1/comments/{id} (authenticated).
func (h *blogHandler) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.store.DeleteComment(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "deleting comment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listTags handles GET /api/v1/tags.
func (h *blogHandler) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.store.Tags(r.Context())
	if err != nil {
		h.writeStoreError(w, err, "listing tags")
		return
	}

	out := make([]tagJSON, len(tags))
	for i, tag := range tags {
		out[i] = tagJSON{ID: tag.ID, Name: tag.Name, Slug: tag.Slug}
	}
	writeJSON(w, http.StatusOK, map[string][]tagJSON{"tags": out}, h.logger)
}

// listAuthors handles GET /api/v1/authors.
func (h *blogHandler) listAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.store.Authors(r.Context())
	if err != nil {
		h.writeStoreError(w, err, "listing authors")
		return
	}

	out := make([]authorJSON, len(authors))
	for i, a := range authors {
		out[i] = toAuthorJSON(a)
	}
	writeJSON(w, http.StatusOK, map[string][]authorJSON{"authors": out}, h.logger)
}

// getAuthor handles GET /api/v1/authors/{slug}.
func (h *blogHandler) getAuthor(w http.ResponseWriter, r *http.Request) {
	author, err := h.store.AuthorBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.writeStoreError(w, err, "fetching author")
		return
	}
	writeJSON(w, http.StatusOK, toAuthorJSON(author), h.logger)
}

type createAuthorRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Bio       string `json:"bio"`
}

// createAuthor handles POST /api/v1/authors (authenticated).
func (h *blogHandler) createAuthor(w http.ResponseWriter, r *http.Request) {
	var req createAuthorRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	author, err := h.store.CreateAuthor(r.Context(), req.FirstName, req.LastName, req.Bio)
	if err != nil {
		h.writeStoreError(w, err, "creating author")
		return
	}
	writeJSON(w, http.StatusCreated, toAuthorJSON(author), h.logger)
}

// writeStoreError maps blog store errors onto HTTP statuses. Unrecognized
// errors are treated as validation failures only when the store reports them
// without a sentinel; genuine infrastructure failures surface as 500.
func (h *blogHandler) writeStoreError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, blog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found", h.logger)
	case errors.Is(err, blog.ErrSlugTaken):
		writeError(w, http.StatusConflict, "slug_taken", "a resource with this slug already exists", h.logger)
	case errors.Is(err, blog.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), h.logger)
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}

// decodeBody decodes a bounded JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxPostBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", logger)
		return false
	}
	return true
}

// parseID parses the {id} path value as a UUID, writing a 400 on failure.
func parseID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a UUID", logger)
		return uuid.Nil, false
	}
	return id, true
}

// parseLimit parses a limit query value, returning 0 (store default) when
// absent or malformed.
func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
