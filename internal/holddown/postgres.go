package holddown

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG keeps per-host failure counters in the fetch_holddown table. Failures
// older than window restart the count; maxFails failures hold the host for holdFor.
type PG struct {
	db       pgxQuerier
	window   time.Duration
	maxFails int
	holdFor  time.Duration
	now      func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed guard over a pool or transaction.
func NewPG(db pgxQuerier, window time.Duration, maxFails int, holdFor time.Duration) *PG {
	if maxFails <= 0 {
		maxFails = 1
	}
	return &PG{db: db, window: window, maxFails: maxFails, holdFor: holdFor, now: time.Now}
}

// Allow reports whether host is outside any hold period.
func (g *PG) Allow(ctx context.Context, host string) (bool, time.Duration, error) {
	const q = `SELECT held_until FROM fetch_holddown WHERE host = $1`
	var heldUntil time.Time
	err := g.db.QueryRow(ctx, q, hostKey(host)).Scan(&heldUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, fmt.Errorf("holddown allow: %w", err)
	}
	if now := g.now(); heldUntil.After(now) {
		return false, heldUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets the counters of host.
func (g *PG) Success(ctx context.Context, host string) error {
	const q = `
INSERT INTO fetch_holddown (host, fail_count, held_until, updated_at)
VALUES ($1, 0, 'epoch', now())
ON CONFLICT (host)
DO UPDATE SET fail_count = 0, held_until = 'epoch', updated_at = now()`
	if _, err := g.db.Exec(ctx, q, hostKey(host)); err != nil {
		return fmt.Errorf("holddown success: %w", err)
	}
	return nil
}

// Failure counts one failed fetch and holds host once the threshold is reached.
func (g *PG) Failure(ctx context.Context, host string) (bool, time.Duration, error) {
	const q = `
INSERT INTO fetch_holddown (host, fail_count, held_until, updated_at)
VALUES ($1, 1, 'epoch', now())
ON CONFLICT (host) DO UPDATE
SET
  fail_count = CASE WHEN now() - fetch_holddown.updated_at > $2::interval THEN 1 ELSE fetch_holddown.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	key := hostKey(host)
	var fails int
	if err := g.db.QueryRow(ctx, q, key, g.window).Scan(&fails); err != nil {
		return false, 0, fmt.Errorf("holddown failure: %w", err)
	}
	if fails < g.maxFails {
		return false, 0, nil
	}
	const upd = `UPDATE fetch_holddown SET held_until = $2 WHERE host = $1`
	if _, err := g.db.Exec(ctx, upd, key, g.now().Add(g.holdFor)); err != nil {
		return false, 0, fmt.Errorf("holddown hold: %w", err)
	}
	return true, g.holdFor, nil
}

func hostKey(host string) string { return strings.ToLower(strings.TrimSpace(host)) }
