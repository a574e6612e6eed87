package blog

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Author is a blog author (application-level type).
type Author struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Slug      string
	Bio       string
	CreatedAt time.Time
}

// DisplayName returns "First Last", falling back to the author slug when both
// name parts are blank.
func (a Author) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(a.FirstName) + " " + strings.TrimSpace(a.LastName))
	if name == "" {
		return a.Slug
	}
	return name
}

// Post is a blog post with its author and tag names resolved.
type Post struct {
	ID        uuid.UUID
	Slug      string
	Title     string
	Summary   string
	Body      string
	Author    Author
	Tags      []string
	Published bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment is a reader comment on a post.
type Comment struct {
	ID         uuid.UUID
	PostID     uuid.UUID
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// Tag is a post tag.
type Tag struct {
	ID   uuid.UUID
	Name string
	Slug string
}
