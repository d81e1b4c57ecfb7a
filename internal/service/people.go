// Package service contains application services: person resolution,
// lifecycle, local accounts and content.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gleenn/diaspora/internal/convert"
	"github.com/gleenn/diaspora/internal/errs"
	"github.com/gleenn/diaspora/internal/federation"
	"github.com/gleenn/diaspora/internal/handle"
	"github.com/gleenn/diaspora/internal/holddown"
	"github.com/gleenn/diaspora/internal/metrics"
	"github.com/gleenn/diaspora/internal/model"
	"github.com/gleenn/diaspora/internal/repository"
)

// DefaultFetchTimeout bounds a remote fetch when none is configured.
const DefaultFetchTimeout = 10 * time.Second

// PeopleService resolves handles to persons and exports them.
type PeopleService interface {
	// Resolve returns the local or cached person for raw, fetching and
	// caching a remote person on a miss.
	Resolve(ctx context.Context, raw string) (*model.Person, error)
	// ResolveLocal returns only persons owned by a local user. It never fetches.
	ResolveLocal(ctx context.Context, raw string) (*model.Person, error)
	// Export renders the current state of a local person as a document.
	Export(ctx context.Context, raw string) (*structpb.Struct, error)
	// UpdateProfile validates and stores a new profile for the person.
	UpdateProfile(ctx context.Context, personID uuid.UUID, p model.Profile) (*model.Person, error)
}

// ResolveOptions selects how far a lookup may go.
type ResolveOptions struct {
	AllowRemote bool
}

// PeopleConfig carries optional collaborators of PeopleServiceImpl.
type PeopleConfig struct {
	PodHost      string
	FetchTimeout time.Duration
	Guard        holddown.Guard
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

type PeopleServiceImpl struct {
	people       repository.PersonRepository
	fetcher      federation.Fetcher
	guard        holddown.Guard
	metrics      *metrics.Metrics
	log          *zap.Logger
	podHost      string
	fetchTimeout time.Duration
	flights      singleflight.Group
	newID        func() (uuid.UUID, error)
}

// NewPeopleService constructs PeopleService. A nil fetcher disables federation.
func NewPeopleService(people repository.PersonRepository, fetcher federation.Fetcher, cfg PeopleConfig) *PeopleServiceImpl {
	s := &PeopleServiceImpl{
		people:       people,
		fetcher:      fetcher,
		guard:        cfg.Guard,
		metrics:      cfg.Metrics,
		log:          cfg.Logger,
		podHost:      cfg.PodHost,
		fetchTimeout: cfg.FetchTimeout,
		newID:        uuid.NewV4,
	}
	if s.fetcher == nil {
		s.fetcher = federation.Disabled
	}
	if s.guard == nil {
		s.guard = holddown.Nop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = DefaultFetchTimeout
	}
	return s
}

// Resolve implements PeopleService.
func (s *PeopleServiceImpl) Resolve(ctx context.Context, raw string) (*model.Person, error) {
	return s.ResolveWith(ctx, raw, ResolveOptions{AllowRemote: true})
}

// ResolveLocal implements PeopleService.
func (s *PeopleServiceImpl) ResolveLocal(ctx context.Context, raw string) (*model.Person, error) {
	return s.ResolveWith(ctx, raw, ResolveOptions{})
}

// ResolveWith runs the shared lookup: normalize, exact store match, then
// (if allowed) fetch and cache.
func (s *PeopleServiceImpl) ResolveWith(ctx context.Context, raw string, opts ResolveOptions) (*model.Person, error) {
	mode := "local"
	if opts.AllowRemote {
		mode = "any"
	}
	h, err := handle.Normalize(raw)
	if err != nil {
		s.metrics.ObserveResolution(mode, metrics.OutcomeInvalid)
		return nil, err
	}

	p, err := s.people.FindByHandle(ctx, h)
	switch {
	case err == nil:
		if !opts.AllowRemote && !p.Local {
			s.metrics.ObserveResolution(mode, metrics.OutcomeNotFound)
			return nil, errs.NotResolved(h.String(), nil)
		}
		if p.Local {
			s.metrics.ObserveResolution(mode, metrics.OutcomeLocalHit)
		} else {
			s.metrics.ObserveResolution(mode, metrics.OutcomeRemoteHit)
		}
		return p, nil
	case !errors.Is(err, errs.ErrNotFound):
		return nil, fmt.Errorf("find person: %w", err)
	}

	// our own users are never fetched from ourselves
	if !opts.AllowRemote || h.Host() == s.podHost {
		s.metrics.ObserveResolution(mode, metrics.OutcomeNotFound)
		return nil, errs.NotResolved(h.String(), nil)
	}
	return s.fetchShared(ctx, h)
}

// fetchShared collapses concurrent misses for one handle into a single fetch.
// The fetch runs detached from any single caller and is bounded by
// fetchTimeout; each caller still stops waiting when its own context ends.
func (s *PeopleServiceImpl) fetchShared(ctx context.Context, h handle.Handle) (*model.Person, error) {
	ch := s.flights.DoChan(h.String(), func() (any, error) {
		return s.fetchAndCache(context.WithoutCancel(ctx), h)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Person), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.metrics.ObserveResolution("any", metrics.OutcomeTimeout)
			return nil, errs.TimedOut(h.String(), ctx.Err())
		}
		return nil, ctx.Err()
	}
}

func (s *PeopleServiceImpl) fetchAndCache(ctx context.Context, h handle.Handle) (*model.Person, error) {
	host := h.Host()
	allowed, wait, err := s.guard.Allow(ctx, host)
	switch {
	case err != nil:
		s.log.Warn("holddown check failed", zap.String("host", host), zap.Error(err))
	case !allowed:
		s.metrics.ObserveResolution("any", metrics.OutcomeHeld)
		return nil, errs.NotResolved(h.String(), fmt.Errorf("%w: host %s held for %s", errs.ErrTransport, host, wait))
	}

	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	start := time.Now()
	pd, err := s.fetcher.FetchRemoteProfile(fctx, h)
	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(fctx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		return nil, s.fetchFailed(ctx, h, err, timedOut, time.Since(start))
	}
	s.metrics.ObserveFetch("ok", time.Since(start))
	if err := s.guard.Success(ctx, host); err != nil {
		s.log.Warn("holddown reset failed", zap.String("host", host), zap.Error(err))
	}

	if pd.Handle != h {
		return nil, errs.NotResolved(h.String(), fmt.Errorf("%w: fetched %q", errs.ErrTransport, pd.Handle))
	}
	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	p := &model.Person{
		ID:                  id,
		Handle:              h,
		SerializedPublicKey: pd.SerializedPublicKey,
		Profile:             pd.Profile,
	}
	if err := p.Validate(); err != nil {
		s.metrics.ObserveResolution("any", metrics.OutcomeInvalid)
		return nil, fmt.Errorf("remote person %q: %w", h, err)
	}

	if err := s.people.Create(ctx, p); err != nil {
		if !errors.Is(err, errs.ErrAlreadyExists) {
			return nil, fmt.Errorf("cache person: %w", err)
		}
		// another writer cached it first; theirs is the one row
		winner, ferr := s.people.FindByHandle(ctx, h)
		if ferr != nil {
			return nil, fmt.Errorf("re-read %q after collision: %w", h, ferr)
		}
		s.metrics.ObserveResolution("any", metrics.OutcomeRemoteHit)
		return winner, nil
	}
	s.log.Info("cached remote person", zap.String("handle", h.String()), zap.String("id", p.ID.String()))
	s.metrics.ObserveResolution("any", metrics.OutcomeFetched)
	return p, nil
}

func (s *PeopleServiceImpl) fetchFailed(ctx context.Context, h handle.Handle, err error, timedOut bool, took time.Duration) error {
	host := h.Host()
	switch {
	case timedOut:
		s.metrics.ObserveFetch("timeout", took)
		s.metrics.ObserveResolution("any", metrics.OutcomeTimeout)
	case errors.Is(err, errs.ErrInvalidIdentifier):
		s.metrics.ObserveResolution("any", metrics.OutcomeInvalid)
		return err
	default:
		s.metrics.ObserveFetch("error", took)
		s.metrics.ObserveResolution("any", metrics.OutcomeNotFound)
	}

	if timedOut || federation.IsTransient(err) {
		held, holdFor, gerr := s.guard.Failure(ctx, host)
		switch {
		case gerr != nil:
			s.log.Warn("holddown record failed", zap.String("host", host), zap.Error(gerr))
		case held:
			s.metrics.IncrementHostsHeld()
			s.log.Warn("remote host held down", zap.String("host", host), zap.Duration("for", holdFor))
		}
	}
	s.log.Debug("remote fetch failed", zap.String("handle", h.String()), zap.Bool("timeout", timedOut), zap.Error(err))

	if timedOut {
		return errs.TimedOut(h.String(), err)
	}
	return errs.NotResolved(h.String(), err)
}

// Export implements PeopleService. The person is re-read so the document
// carries the profile as stored now.
func (s *PeopleServiceImpl) Export(ctx context.Context, raw string) (*structpb.Struct, error) {
	p, err := s.ResolveLocal(ctx, raw)
	if err != nil {
		return nil, err
	}
	cur, err := s.people.GetByID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("reload person: %w", err)
	}
	return convert.PersonToDocument(cur)
}

// UpdateProfile implements PeopleService.
func (s *PeopleServiceImpl) UpdateProfile(ctx context.Context, personID uuid.UUID, prof model.Profile) (*model.Person, error) {
	if err := prof.Validate(); err != nil {
		return nil, err
	}
	p, err := s.people.GetByID(ctx, personID)
	if err != nil {
		return nil, err
	}
	p.Profile = prof
	if err := s.people.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

var _ PeopleService = (*PeopleServiceImpl)(nil)
