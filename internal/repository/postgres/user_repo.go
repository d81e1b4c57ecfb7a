package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/gleenn/diaspora/internal/errs"
	"github.com/gleenn/diaspora/internal/model"
)

const selectUser = `
SELECT u.id, u.username, u.pwd_hash, u.created_at, p.id
FROM users u JOIN people p ON p.owner_id = u.id`

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// CreateWithPerson inserts the user, its person and profile in one transaction.
// A taken username or handle yields errs.ErrAlreadyExists.
func (r *UserRepo) CreateWithPerson(ctx context.Context, u *model.User, p *model.Person) error {
	const ins = `
INSERT INTO users (id, username, username_lower, pwd_hash)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, ins, u.ID, u.Username, strings.ToLower(u.Username), u.PwdHash).Scan(&u.CreatedAt)
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		p.OwnerID = u.ID
		p.Local = true
		if err := insertPerson(ctx, tx, p); err != nil {
			return err
		}
		if err := insertProfile(ctx, tx, p.ID, p.Profile); err != nil {
			return err
		}
		u.PersonID = p.ID
		return nil
	})
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx, selectUser+`
WHERE u.id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "get user")
	}
	return u, nil
}

// GetByPersonID selects the user owning a local person.
func (r *UserRepo) GetByPersonID(ctx context.Context, personID uuid.UUID) (*model.User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx, selectUser+`
WHERE p.id = $1`, personID))
	if err != nil {
		return nil, notFoundOr(err, "get user by person")
	}
	return u, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.PwdHash, &u.CreatedAt, &u.PersonID); err != nil {
		return nil, err
	}
	return &u, nil
}
