package postgres

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/gleenn/diaspora/internal/errs"
	"github.com/gleenn/diaspora/internal/model"
)

// ContentRepo implements ContentRepository using PostgreSQL.
type ContentRepo struct{ db *DB }

// NewContentRepo constructs a content repository.
func NewContentRepo(db *DB) *ContentRepo { return &ContentRepo{db: db} }

// CreatePost inserts a post; errs.ErrNotFound if the author is unknown.
func (r *ContentRepo) CreatePost(ctx context.Context, p *model.Post) error {
	const q = `INSERT INTO posts (id, author_id, text) VALUES ($1, $2, $3) RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, p.ID, p.AuthorID, p.Text).Scan(&p.CreatedAt)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// GetPost selects a post by ID.
func (r *ContentRepo) GetPost(ctx context.Context, id uuid.UUID) (*model.Post, error) {
	const q = `SELECT id, author_id, text, created_at FROM posts WHERE id = $1`
	var p model.Post
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.AuthorID, &p.Text, &p.CreatedAt); err != nil {
		return nil, notFoundOr(err, "get post")
	}
	return &p, nil
}

// CreateComment inserts a comment; errs.ErrNotFound if post or author is unknown.
func (r *ContentRepo) CreateComment(ctx context.Context, c *model.Comment) error {
	const q = `INSERT INTO comments (id, post_id, author_id, text) VALUES ($1, $2, $3, $4) RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, c.ID, c.PostID, c.AuthorID, c.Text).Scan(&c.CreatedAt)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// CountPosts returns the total number of posts.
func (r *ContentRepo) CountPosts(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT count(*) FROM posts`)
}

// CountComments returns the total number of comments.
func (r *ContentRepo) CountComments(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT count(*) FROM comments`)
}

func (r *ContentRepo) count(ctx context.Context, q string) (int64, error) {
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
