package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/gleenn/diaspora/internal/model"
)

const defaultSearchLimit = 100

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchRepo implements SearchIndex with ILIKE scans over profile names.
type SearchRepo struct{ db *DB }

// NewSearchRepo constructs a search index backed by the profiles table.
func NewSearchRepo(db *DB) *SearchRepo { return &SearchRepo{db: db} }

// Candidates returns persons whose first or last name contains any term, or
// whose "first last" contains the terms joined by a space.
func (r *SearchRepo) Candidates(ctx context.Context, terms []string, limit int) ([]model.Person, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	patterns := make([]string, 0, len(terms))
	for _, t := range terms {
		patterns = append(patterns, "%"+likeEscaper.Replace(strings.ToLower(t))+"%")
	}
	full := "%" + likeEscaper.Replace(strings.ToLower(strings.Join(terms, " "))) + "%"

	rows, err := r.db.Pool.Query(ctx, selectPerson+`
WHERE lower(pr.first_name) LIKE ANY($1)
   OR lower(pr.last_name) LIKE ANY($1)
   OR lower(pr.first_name || ' ' || pr.last_name) LIKE $2
ORDER BY lower(pr.last_name), lower(pr.first_name), p.handle
LIMIT $3`, patterns, full, limit)
	if err != nil {
		return nil, fmt.Errorf("search people: %w", err)
	}
	defer rows.Close()

	var out []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
