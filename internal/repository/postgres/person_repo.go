package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/gleenn/diaspora/internal/errs"
	"github.com/gleenn/diaspora/internal/handle"
	"github.com/gleenn/diaspora/internal/model"
)

const selectPerson = `
SELECT p.id, p.handle, p.owner_id, p.serialized_public_key, p.created_at, p.updated_at,
       pr.first_name, pr.last_name, pr.image_url
FROM people p JOIN profiles pr ON pr.person_id = p.id`

// PersonRepo implements PersonRepository using PostgreSQL.
type PersonRepo struct{ db *DB }

// NewPersonRepo constructs a person repository.
func NewPersonRepo(db *DB) *PersonRepo { return &PersonRepo{db: db} }

// FindByHandle selects a person by exact canonical handle.
func (r *PersonRepo) FindByHandle(ctx context.Context, h handle.Handle) (*model.Person, error) {
	p, err := scanPerson(r.db.Pool.QueryRow(ctx, selectPerson+`
WHERE p.handle = $1`, h.String()))
	if err != nil {
		return nil, notFoundOr(err, "find person by handle")
	}
	return p, nil
}

// GetByID selects a person by ID.
func (r *PersonRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Person, error) {
	p, err := scanPerson(r.db.Pool.QueryRow(ctx, selectPerson+`
WHERE p.id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "get person")
	}
	return p, nil
}

// ExistsWithHandle reports whether a person other than excluding holds h.
func (r *PersonRepo) ExistsWithHandle(ctx context.Context, h handle.Handle, excluding uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM people WHERE handle = $1 AND id <> $2)`
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, q, h.String(), excluding).Scan(&exists); err != nil {
		return false, fmt.Errorf("person exists: %w", err)
	}
	return exists, nil
}

// Create inserts the person and its profile in one transaction.
func (r *PersonRepo) Create(ctx context.Context, p *model.Person) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertPerson(ctx, tx, p); err != nil {
			return err
		}
		return insertProfile(ctx, tx, p.ID, p.Profile)
	})
}

// Update rewrites handle, public key and profile. Ownership never changes.
func (r *PersonRepo) Update(ctx context.Context, p *model.Person) error {
	const upPerson = `
UPDATE people SET handle = $2, serialized_public_key = $3, updated_at = now()
WHERE id = $1
RETURNING updated_at`
	const upProfile = `
UPDATE profiles SET first_name = $2, last_name = $3, image_url = $4
WHERE person_id = $1`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, upPerson, p.ID, p.Handle.String(), p.SerializedPublicKey).Scan(&p.UpdatedAt)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return errs.ErrNotFound
		case isUniqueViolation(err):
			return errs.ErrAlreadyExists
		case err != nil:
			return fmt.Errorf("update person: %w", err)
		}
		tag, err := tx.Exec(ctx, upProfile, p.ID, p.Profile.FirstName, p.Profile.LastName, p.Profile.ImageURL)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update profile: %w", errs.ErrNotFound)
		}
		return nil
	})
}

// Delete removes profile and person together.
func (r *PersonRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		return deletePersonRow(ctx, tx, id)
	})
}

func insertPerson(ctx context.Context, q querier, p *model.Person) error {
	const ins = `
INSERT INTO people (id, handle, owner_id, serialized_public_key)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at`
	err := q.QueryRow(ctx, ins, p.ID, p.Handle.String(), nullUUID(p.OwnerID), p.SerializedPublicKey).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func insertProfile(ctx context.Context, q querier, personID uuid.UUID, pr model.Profile) error {
	const ins = `
INSERT INTO profiles (person_id, first_name, last_name, image_url)
VALUES ($1, $2, $3, $4)`
	if _, err := q.Exec(ctx, ins, personID, pr.FirstName, pr.LastName, pr.ImageURL); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// deletePersonRow deletes the profile before the person; both or neither
// must go, so callers run it inside a transaction.
func deletePersonRow(ctx context.Context, q querier, id uuid.UUID) error {
	if _, err := q.Exec(ctx, `DELETE FROM profiles WHERE person_id = $1`, id); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	tag, err := q.Exec(ctx, `DELETE FROM people WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanPerson(row pgx.Row) (*model.Person, error) {
	var (
		p     model.Person
		h     string
		owner uuid.NullUUID
	)
	if err := row.Scan(&p.ID, &h, &owner, &p.SerializedPublicKey, &p.CreatedAt, &p.UpdatedAt,
		&p.Profile.FirstName, &p.Profile.LastName, &p.Profile.ImageURL); err != nil {
		return nil, err
	}
	p.Handle = handle.Handle(h)
	if owner.Valid {
		p.OwnerID = owner.UUID
		p.Local = true
	}
	return &p, nil
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
