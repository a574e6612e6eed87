package blog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors for blog operations, checked with errors.Is().
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSlugTaken indicates a slug collision that could not be resolved.
	ErrSlugTaken = errors.New("slug already taken")

	// ErrInvalidInput indicates a write was rejected before reaching the
	// database (missing required fields).
	ErrInvalidInput = errors.New("invalid input")
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// postCols is the standard SELECT column list for scanPosts: post fields,
// joined author fields, then the aggregated tag names.
const postCols = `p.id, p.slug, p.title, p.summary, p.body, p.published, p.created_at, p.updated_at,
	a.id, a.first_name, a.last_name, a.slug, a.bio, a.created_at,
	COALESCE(array_agg(t.name ORDER BY t.name) FILTER (WHERE t.name IS NOT NULL), '{}')`

// postJoins joins posts to their author and tags; every post query shares it.
const postJoins = `FROM posts p
	JOIN authors a ON a.id = p.author_id
	LEFT JOIN post_tags pt ON pt.post_id = p.id
	LEFT JOIN tags t ON t.id = pt.tag_id`

const postGroupBy = `GROUP BY p.id, a.id`

// Store provides blog content persistence backed by PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a blog Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// NewPost carries the fields needed to create a post. The slug is derived
// from the title.
type NewPost struct {
	AuthorID  uuid.UUID
	Title     string
	Summary   string
	Body      string
	Tags      []string
	Published bool
}

// PostUpdate carries the mutable fields of an existing post. Nil pointers
// leave the column untouched; a non-nil Tags replaces the full tag set.
type PostUpdate struct {
	Title     *string
	Summary   *string
	Body      *string
	Published *bool
	Tags      []string
}

// CreatePost inserts a post with its tags and returns the stored row. The
// slug comes from the title; on collision a short random suffix is appended
// so two posts may share a title.
func (s *Store) CreatePost(ctx context.Context, np NewPost) (Post, error) {
	title := strings.TrimSpace(np.Title)
	if title == "" {
		return Post{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(np.Body) == "" {
		return Post{}, fmt.Errorf("%w: body is required", ErrInvalidInput)
	}

	slug := Slugify(title)
	if slug == "" {
		slug = "post"
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Post{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	id, err := insertPost(ctx, tx, np, title, slug)
	if err != nil {
		return Post{}, err
	}
	if err := replaceTags(ctx, tx, id, np.Tags); err != nil {
		return Post{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Post{}, fmt.Errorf("committing post: %w", err)
	}

	return s.PostByID(ctx, id)
}

// insertPost tries the derived slug first, then once more with a random
// suffix if the slug is taken.
func insertPost(ctx context.Context, q querier, np NewPost, title, slug string) (uuid.UUID, error) {
	const sql = `INSERT INTO posts (author_id, slug, title, summary, body, published)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id uuid.UUID
	err := q.QueryRow(ctx, sql, np.AuthorID, slug, title, np.Summary, np.Body, np.Published).Scan(&id)
	if isUniqueViolation(err) {
		suffixed := slug + "-" + uuid.NewString()[:8]
		err = q.QueryRow(ctx, sql, np.AuthorID, suffixed, title, np.Summary, np.Body, np.Published).Scan(&id)
		if isUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrSlugTaken, slug)
		}
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting post: %w", err)
	}
	return id, nil
}

// replaceTags sets the post's tag associations to exactly the given names,
// creating tag rows as needed. Names are slugified for the tag slug and
// deduplicated case-insensitively.
func replaceTags(ctx context.Context, q querier, postID uuid.UUID, names []string) error {
	if _, err := q.Exec(ctx, `DELETE FROM post_tags WHERE post_id = $1`, postID); err != nil {
		return fmt.Errorf("clearing post tags: %w", err)
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		slug := Slugify(name)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true

		var tagID uuid.UUID
		err := q.QueryRow(ctx,
			`INSERT INTO tags (name, slug) VALUES ($1, $2)
			 ON CONFLICT (slug) DO UPDATE SET name = tags.name
			 RETURNING id`,
			name, slug,
		).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upserting tag %q: %w", name, err)
		}

		if _, err := q.Exec(ctx,
			`INSERT INTO post_tags (post_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			postID, tagID,
		); err != nil {
			return fmt.Errorf("linking tag %q: %w", name, err)
		}
	}
	return nil
}

// UpdatePost applies a partial update and returns the stored row.
// Returns ErrNotFound if the post does not exist.
func (s *Store) UpdatePost(ctx context.Context, id uuid.UUID, up PostUpdate) (Post, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Post{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE posts
		 SET title = COALESCE($2, title),
		     summary = COALESCE($3, summary),
		     body = COALESCE($4, body),
		     published = COALESCE($5, published),
		     updated_at = now()
		 WHERE id = $1`,
		id, up.Title, up.Summary, up.Body, up.Published,
	)
	if err != nil {
		return Post{}, fmt.Errorf("updating post %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return Post{}, ErrNotFound
	}

	if up.Tags != nil {
		if err := replaceTags(ctx, tx, id, up.Tags); err != nil {
			return Post{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Post{}, fmt.Errorf("committing post update: %w", err)
	}

	return s.PostByID(ctx, id)
}

// DeletePost removes a post and its comment/tag links.
// Returns ErrNotFound if the post does not exist.
func (s *Store) DeletePost(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting post %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PostByID returns one post regardless of publication state.
func (s *Store) PostByID(ctx context.Context, id uuid.UUID) (Post, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postCols+` `+postJoins+` WHERE p.id = $1 `+postGroupBy,
		id,
	)
	if err != nil {
		return Post{}, fmt.Errorf("querying post %s: %w", id, err)
	}
	defer rows.Close()
	return onePost(rows)
}

// PostBySlug returns one published post by its slug.
func (s *Store) PostBySlug(ctx context.Context, slug string) (Post, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postCols+` `+postJoins+` WHERE p.slug = $1 AND p.published = true `+postGroupBy,
		slug,
	)
	if err != nil {
		return Post{}, fmt.Errorf("querying post %q: %w", slug, err)
	}
	defer rows.Close()
	return onePost(rows)
}

// Published returns up to limit published posts, newest first.
func (s *Store) Published(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+postCols+` `+postJoins+` WHERE p.published = true `+postGroupBy+`
		 ORDER BY p.created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing published posts: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// PostsByTag returns published posts carrying the given tag slug, newest first.
func (s *Store) PostsByTag(ctx context.Context, tagSlug string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+postCols+` `+postJoins+`
		 WHERE p.published = true
		   AND p.id IN (
		     SELECT pt2.post_id FROM post_tags pt2
		     JOIN tags t2 ON t2.id = pt2.tag_id
		     WHERE t2.slug = $1
		   )
		 `+postGroupBy+`
		 ORDER BY p.created_at DESC
		 LIMIT $2`,
		tagSlug, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing posts for tag %q: %w", tagSlug, err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// PostsByAuthor returns published posts by the given author slug, newest first.
func (s *Store) PostsByAuthor(ctx context.Context, authorSlug string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+postCols+` `+postJoins+`
		 WHERE p.published = true AND a.slug = $1
		 `+postGroupBy+`
		 ORDER BY p.created_at DESC
		 LIMIT $2`,
		authorSlug, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing posts for author %q: %w", authorSlug, err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// CreateAuthor inserts an author. The slug derives from the display name; on
// collision a short random suffix is appended.
func (s *Store) CreateAuthor(ctx context.Context, firstName, lastName, bio string) (Author, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" && lastName == "" {
		return Author{}, fmt.Errorf("%w: author name is required", ErrInvalidInput)
	}

	slug := Slugify(strings.TrimSpace(firstName + " " + lastName))
	if slug == "" {
		slug = "author"
	}

	const sql = `INSERT INTO authors (first_name, last_name, slug, bio)
		VALUES ($1, $2, $3, $4)
		RETURNING id, first_name, last_name, slug, bio, created_at`

	var a Author
	err := s.pool.QueryRow(ctx, sql, firstName, lastName, slug, bio).
		Scan(&a.ID, &a.FirstName, &a.LastName, &a.Slug, &a.Bio, &a.CreatedAt)
	if isUniqueViolation(err) {
		slug = slug + "-" + uuid.NewString()[:8]
		err = s.pool.QueryRow(ctx, sql, firstName, lastName, slug, bio).
			Scan(&a.ID, &a.FirstName, &a.LastName, &a.Slug, &a.Bio, &a.CreatedAt)
	}
	if err != nil {
		return Author{}, fmt.Errorf("inserting author: %w", err)
	}
	return a, nil
}

// AuthorBySlug returns one author.
func (s *Store) AuthorBySlug(ctx context.Context, slug string) (Author, error) {
	var a Author
	err := s.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, slug, bio, created_at FROM authors WHERE slug = $1`,
		slug,
	).Scan(&a.ID, &a.FirstName, &a.LastName, &a.Slug, &a.Bio, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Author{}, ErrNotFound
	}
	if err != nil {
		return Author{}, fmt.Errorf("querying author %q: %w", slug, err)
	}
	return a, nil
}

// Authors returns all authors ordered by slug.
func (s *Store) Authors(ctx context.Context) ([]Author, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, first_name, last_name, slug, bio, created_at FROM authors ORDER BY slug`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing authors: %w", err)
	}
	defer rows.Close()

	var authors []Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Slug, &a.Bio, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning author: %w", err)
		}
		authors = append(authors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating authors: %w", err)
	}
	return authors, nil
}

// AddComment attaches a reader comment to a published post.
// Returns ErrNotFound if the post does not exist or is unpublished.
func (s *Store) AddComment(ctx context.Context, postID uuid.UUID, authorName, body string) (Comment, error) {
	authorName = strings.TrimSpace(authorName)
	body = strings.TrimSpace(body)
	if authorName == "" {
		return Comment{}, fmt.Errorf("%w: comment author name is required", ErrInvalidInput)
	}
	if body == "" {
		return Comment{}, fmt.Errorf("%w: comment body is required", ErrInvalidInput)
	}

	var c Comment
	err := s.pool.QueryRow(ctx,
		`INSERT INTO comments (post_id, author_name, body)
		 SELECT id, $2, $3 FROM posts WHERE id = $1 AND published = true
		 RETURNING id, post_id, author_name, body, created_at`,
		postID, authorName, body,
	).Scan(&c.ID, &c.PostID, &c.AuthorName, &c.Body, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("inserting comment: %w", err)
	}
	return c, nil
}

// Comments returns a post's comments, oldest first.
func (s *Store) Comments(ctx context.Context, postID uuid.UUID) ([]Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, post_id, author_name, body, created_at
		 FROM comments WHERE post_id = $1
		 ORDER BY created_at ASC, id ASC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing comments for post %s: %w", postID, err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating comments: %w", err)
	}
	return comments, nil
}

// DeleteComment removes one comment.
// Returns ErrNotFound if the comment does not exist.
func (s *Store) DeleteComment(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting comment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Tags returns all tags ordered by name.
func (s *Store) Tags(ctx context.Context) ([]Tag, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, slug FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	return tags, nil
}

// onePost reads exactly one post from rows, mapping an empty result to
// ErrNotFound.
func onePost(rows pgx.Rows) (Post, error) {
	posts, err := scanPosts(rows)
	if err != nil {
		return Post{}, err
	}
	if len(posts) == 0 {
		return Post{}, ErrNotFound
	}
	return posts[0], nil
}

// scanPosts reads Post structs from pgx.Rows (standard column set).
func scanPosts(rows pgx.Rows) ([]Post, error) {
	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(
			&p.ID, &p.Slug, &p.Title, &p.Summary, &p.Body, &p.Published, &p.CreatedAt, &p.UpdatedAt,
			&p.Author.ID, &p.Author.FirstName, &p.Author.LastName, &p.Author.Slug, &p.Author.Bio, &p.Author.CreatedAt,
			&p.Tags,
		); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posts: %w", err)
	}
	return posts, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
