package postgres

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/gleenn/diaspora/internal/errs"
	"github.com/gleenn/diaspora/internal/model"
)

// ContactRepo implements ContactRepository using PostgreSQL.
type ContactRepo struct{ db *DB }

// NewContactRepo constructs a contact repository.
func NewContactRepo(db *DB) *ContactRepo { return &ContactRepo{db: db} }

// Add inserts a (user, person) edge.
func (r *ContactRepo) Add(ctx context.Context, c *model.Contact) error {
	const q = `INSERT INTO contacts (user_id, person_id, aspect) VALUES ($1, $2, $3) RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, c.UserID, c.PersonID, c.Aspect).Scan(&c.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return errs.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return errs.ErrNotFound
	case err != nil:
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

// Remove deletes one edge. The person on the other end is never touched.
func (r *ContactRepo) Remove(ctx context.Context, userID, personID uuid.UUID) error {
	const q = `DELETE FROM contacts WHERE user_id = $1 AND person_id = $2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, personID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// CountReferencing counts local users holding an edge to personID.
func (r *ContactRepo) CountReferencing(ctx context.Context, personID uuid.UUID) (int64, error) {
	const q = `SELECT count(*) FROM contacts WHERE person_id = $1`
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q, personID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}
