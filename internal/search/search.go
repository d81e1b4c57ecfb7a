// Package search answers partial and full-name queries over person profiles.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gleenn/diaspora/internal/model"
	"github.com/gleenn/diaspora/internal/repository"
)

// DefaultLimit caps the candidates requested from the index.
const DefaultLimit = 100

// Terms splits query on whitespace and lowercases every term.
func Terms(query string) []string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

// Matches reports whether any term of query is a case-insensitive substring
// of the first or last name, or the whole query is a substring of "first last".
func Matches(p model.Profile, query string) bool {
	terms := Terms(query)
	if len(terms) == 0 {
		return false
	}
	first := strings.ToLower(p.FirstName)
	last := strings.ToLower(p.LastName)
	for _, t := range terms {
		if strings.Contains(first, t) || strings.Contains(last, t) {
			return true
		}
	}
	return strings.Contains(first+" "+last, strings.Join(terms, " "))
}

// Facade filters index candidates with Matches and orders them deterministically.
type Facade struct {
	index repository.SearchIndex
	limit int
}

// NewFacade returns a Facade over index. limit <= 0 means DefaultLimit.
func NewFacade(index repository.SearchIndex, limit int) *Facade {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Facade{index: index, limit: limit}
}

// Search returns persons matching query ordered by last name, first name, handle.
// An empty query or no match yields an empty, non-nil slice.
func (f *Facade) Search(ctx context.Context, query string) ([]model.Person, error) {
	out := []model.Person{}
	terms := Terms(query)
	if len(terms) == 0 {
		return out, nil
	}
	cands, err := f.index.Candidates(ctx, terms, f.limit)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	seen := make(map[string]struct{}, len(cands))
	for _, p := range cands {
		if _, dup := seen[p.ID.String()]; dup {
			continue
		}
		if Matches(p.Profile, query) {
			seen[p.ID.String()] = struct{}{}
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func less(a, b model.Person) bool {
	al, bl := strings.ToLower(a.Profile.LastName), strings.ToLower(b.Profile.LastName)
	if al != bl {
		return al < bl
	}
	af, bf := strings.ToLower(a.Profile.FirstName), strings.ToLower(b.Profile.FirstName)
	if af != bf {
		return af < bf
	}
	return a.Handle < b.Handle
}
