// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/gleenn/diaspora/internal/errs"
	"github.com/gleenn/diaspora/internal/handle"
)

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Profile is the name card owned by exactly one Person.
type Profile struct {
	FirstName string
	LastName  string
	ImageURL  string
}

// Validate reports the first failing field as *errs.FieldError.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.FirstName) == "" {
		return &errs.FieldError{Field: "first_name", Reason: "first name is required"}
	}
	if len(p.FirstName) > 127 {
		return &errs.FieldError{Field: "first_name", Reason: "first name is too long"}
	}
	if len(p.LastName) > 127 {
		return &errs.FieldError{Field: "last_name", Reason: "last name is too long"}
	}
	return nil
}

// FullName joins first and last name with a single space.
func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Person is an addressable social identity. Local persons are owned by a
// local User (OwnerID set); remote persons are cached copies (OwnerID nil).
type Person struct {
	ID                  uuid.UUID     // PK, assigned at creation
	Handle              handle.Handle // unique, canonical
	OwnerID             uuid.UUID     // FK -> users.id, uuid.Nil for remote persons
	Local               bool          // OwnerID != uuid.Nil
	SerializedPublicKey string
	Profile             Profile
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Validate checks the person and its owned profile.
func (p *Person) Validate() error {
	if p.Handle.IsZero() {
		return &errs.FieldError{Field: "diaspora_handle", Reason: "handle is required"}
	}
	if p.Local != (p.OwnerID != uuid.Nil) {
		return &errs.FieldError{Field: "owner_id", Reason: "local persons need an owner, remote persons must not have one"}
	}
	return p.Profile.Validate()
}

// Owns reports whether the person authored the post.
func (p *Person) Owns(post *Post) bool {
	return p != nil && post != nil && post.AuthorID == p.ID
}

// User is a local account. Credentials never leave the server.
type User struct {
	ID        uuid.UUID // PK
	Username  string    // unique, case-insensitive
	PersonID  uuid.UUID // person owned by this user
	PwdHash   string    // encoded argon2id hash
	CreatedAt time.Time
}

// Post is top-level content owned by its author.
type Post struct {
	ID        uuid.UUID
	AuthorID  uuid.UUID // FK -> people.id
	Text      string
	CreatedAt time.Time
}

// Comment belongs to a post and is authored by a person who need not own the post.
type Comment struct {
	ID        uuid.UUID
	PostID    uuid.UUID // FK -> posts.id, owning side
	AuthorID  uuid.UUID // FK -> people.id, authorship only
	Text      string
	CreatedAt time.Time
}

// Contact is one edge from a local user's social graph to a person.
type Contact struct {
	UserID    uuid.UUID
	PersonID  uuid.UUID
	Aspect    string
	CreatedAt time.Time
}

// DestroyReport counts what a person's destruction removed.
type DestroyReport struct {
	PersonID        uuid.UUID
	PostsRemoved    int64
	CommentsRemoved int64 // comments on the person's own posts
	CommentsKept    int64 // comments the person wrote on others' posts, detached from the author
	ContactsRemoved int64
	UserRemoved     bool
	Retained        bool // person kept because local users still reference it
}

// ProfileData is what a remote pod returns for one of its persons.
type ProfileData struct {
	Handle              handle.Handle
	SerializedPublicKey string
	Profile             Profile
}
