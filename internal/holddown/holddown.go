// Package holddown suppresses remote fetches to pods that keep failing.
// It never retries anything; it only answers whether a fetch may be attempted.
package holddown

import (
	"context"
	"time"
)

// Guard tracks transport failures per remote host.
type Guard interface {
	// Allow reports whether host may be contacted now and, if not, for how long it is held.
	Allow(ctx context.Context, host string) (bool, time.Duration, error)
	// Success clears the failure history of host.
	Success(ctx context.Context, host string) error
	// Failure records a failed fetch; it may place host on hold.
	Failure(ctx context.Context, host string) (bool, time.Duration, error)
}

// Nop never holds a host.
type Nop struct{}

func (Nop) Allow(context.Context, string) (bool, time.Duration, error)   { return true, 0, nil }
func (Nop) Success(context.Context, string) error                        { return nil }
func (Nop) Failure(context.Context, string) (bool, time.Duration, error) { return false, 0, nil }
