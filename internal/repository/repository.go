// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/gleenn/diaspora/internal/handle"
	"github.com/gleenn/diaspora/internal/model"
)

// PersonRepository persists persons together with their profiles.
// Handle uniqueness is enforced by the backend, not by callers.
type PersonRepository interface {
	// FindByHandle returns the person with exactly this canonical handle.
	FindByHandle(ctx context.Context, h handle.Handle) (*model.Person, error)
	// GetByID loads a person by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Person, error)
	// ExistsWithHandle reports whether another person (not excluding) holds h.
	ExistsWithHandle(ctx context.Context, h handle.Handle, excluding uuid.UUID) (bool, error)
	// Create inserts person and profile atomically; errs.ErrAlreadyExists on handle collision.
	Create(ctx context.Context, p *model.Person) error
	// Update rewrites handle, key and profile atomically.
	Update(ctx context.Context, p *model.Person) error
	// Delete removes person and profile atomically.
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserRepository provisions and loads local users.
type UserRepository interface {
	// CreateWithPerson inserts the user and its local person in one transaction.
	CreateWithPerson(ctx context.Context, u *model.User, p *model.Person) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByPersonID loads the user owning the given person.
	GetByPersonID(ctx context.Context, personID uuid.UUID) (*model.User, error)
}

// ContentRepository stores posts and comments.
type ContentRepository interface {
	CreatePost(ctx context.Context, p *model.Post) error
	GetPost(ctx context.Context, id uuid.UUID) (*model.Post, error)
	CreateComment(ctx context.Context, c *model.Comment) error
	CountPosts(ctx context.Context) (int64, error)
	CountComments(ctx context.Context) (int64, error)
}

// ContactRepository stores edges of local users' social graphs.
type ContactRepository interface {
	// Add inserts an edge; errs.ErrAlreadyExists if the user already has it.
	Add(ctx context.Context, c *model.Contact) error
	// Remove deletes exactly one edge; errs.ErrNotFound if absent.
	Remove(ctx context.Context, userID, personID uuid.UUID) error
	// CountReferencing returns how many local users hold an edge to personID.
	CountReferencing(ctx context.Context, personID uuid.UUID) (int64, error)
}

// LifecycleRepository runs cascade procedures inside single transactions.
type LifecycleRepository interface {
	// DestroyPerson removes owned content and, unless still referenced
	// (and force is false), the person with its profile. All or nothing.
	DestroyPerson(ctx context.Context, personID uuid.UUID, force bool) (model.DestroyReport, error)
	// PruneOrphan removes a remote person nobody references and who owns nothing.
	PruneOrphan(ctx context.Context, personID uuid.UUID) (bool, error)
}

// SearchIndex returns candidate persons whose profile names may match terms.
// Callers apply the exact matching rules; the index may over-approximate.
type SearchIndex interface {
	Candidates(ctx context.Context, terms []string, limit int) ([]model.Person, error)
}
