package postgres

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/gleenn/diaspora/internal/model"
)

// LifecycleRepo implements LifecycleRepository using PostgreSQL.
type LifecycleRepo struct{ db *DB }

// NewLifecycleRepo constructs a lifecycle repository.
func NewLifecycleRepo(db *DB) *LifecycleRepo { return &LifecycleRepo{db: db} }

// DestroyPerson runs the cascade inside one transaction:
//   - comments on the person's posts and the posts themselves are deleted;
//   - comments the person wrote on other posts stay, with the author detached;
//   - if local users still reference the person and force is false, the
//     person and profile are retained;
//   - otherwise referencing edges, the owner's own edges, the profile, the
//     person and (for local persons) the owning user are deleted.
//
// The person row is locked first so concurrent contact inserts wait for the outcome.
func (r *LifecycleRepo) DestroyPerson(ctx context.Context, personID uuid.UUID, force bool) (rep model.DestroyReport, err error) {
	rep.PersonID = personID
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		var owner uuid.NullUUID
		if err := tx.QueryRow(ctx, `SELECT owner_id FROM people WHERE id = $1 FOR UPDATE`, personID).Scan(&owner); err != nil {
			return notFoundOr(err, "lock person")
		}

		n, err := execCount(ctx, tx, `
DELETE FROM comments WHERE post_id IN (SELECT id FROM posts WHERE author_id = $1)`, personID)
		if err != nil {
			return fmt.Errorf("delete comments on owned posts: %w", err)
		}
		rep.CommentsRemoved = n

		if rep.PostsRemoved, err = execCount(ctx, tx, `DELETE FROM posts WHERE author_id = $1`, personID); err != nil {
			return fmt.Errorf("delete posts: %w", err)
		}

		var refs int64
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM contacts WHERE person_id = $1`, personID).Scan(&refs); err != nil {
			return fmt.Errorf("count referencing contacts: %w", err)
		}
		if refs > 0 && !force {
			rep.Retained = true
			return nil
		}
		if refs > 0 {
			if n, err = execCount(ctx, tx, `DELETE FROM contacts WHERE person_id = $1`, personID); err != nil {
				return fmt.Errorf("delete referencing contacts: %w", err)
			}
			rep.ContactsRemoved += n
		}
		if owner.Valid {
			if n, err = execCount(ctx, tx, `DELETE FROM contacts WHERE user_id = $1`, owner.UUID); err != nil {
				return fmt.Errorf("delete owner contacts: %w", err)
			}
			rep.ContactsRemoved += n
		}

		if rep.CommentsKept, err = execCount(ctx, tx, `UPDATE comments SET author_id = NULL WHERE author_id = $1`, personID); err != nil {
			return fmt.Errorf("detach authored comments: %w", err)
		}
		if err := deletePersonRow(ctx, tx, personID); err != nil {
			return err
		}
		if owner.Valid {
			if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, owner.UUID); err != nil {
				return fmt.Errorf("delete owner: %w", err)
			}
			rep.UserRemoved = true
		}
		return nil
	})
	if err != nil {
		return model.DestroyReport{PersonID: personID}, err
	}
	return rep, nil
}

// PruneOrphan deletes a remote person with no posts, comments or referencing
// contacts. It reports whether the person was removed.
func (r *LifecycleRepo) PruneOrphan(ctx context.Context, personID uuid.UUID) (removed bool, err error) {
	const refsQ = `
SELECT (SELECT count(*) FROM contacts WHERE person_id = $1)
     + (SELECT count(*) FROM posts WHERE author_id = $1)
     + (SELECT count(*) FROM comments WHERE author_id = $1)`
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		var owner uuid.NullUUID
		if err := tx.QueryRow(ctx, `SELECT owner_id FROM people WHERE id = $1 FOR UPDATE`, personID).Scan(&owner); err != nil {
			return notFoundOr(err, "lock person")
		}
		if owner.Valid {
			return nil
		}
		var refs int64
		if err := tx.QueryRow(ctx, refsQ, personID).Scan(&refs); err != nil {
			return fmt.Errorf("count references: %w", err)
		}
		if refs > 0 {
			return nil
		}
		if err := deletePersonRow(ctx, tx, personID); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func execCount(ctx context.Context, q querier, sql string, args ...any) (int64, error) {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
