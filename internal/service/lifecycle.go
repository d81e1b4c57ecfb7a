package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/gleenn/diaspora/internal/metrics"
	"github.com/gleenn/diaspora/internal/model"
	"github.com/gleenn/diaspora/internal/repository"
)

// DefaultAspect groups contacts added without an explicit aspect.
const DefaultAspect = "Friends"

// DestroyOptions controls how Destroy treats a person other users still reference.
type DestroyOptions struct {
	// Force severs every contact edge to the person and removes it anyway.
	Force bool
}

// LifecycleService enforces ownership cascades and manages contact edges.
type LifecycleService interface {
	// Destroy removes the person's posts with their comments, keeps comments the
	// person wrote elsewhere, and removes person and profile unless still referenced.
	Destroy(ctx context.Context, personID uuid.UUID, opts DestroyOptions) (model.DestroyReport, error)
	// Befriend adds personID to the user's aspect.
	Befriend(ctx context.Context, userID, personID uuid.UUID, aspect string) error
	// Unfriend removes one edge. The person itself is never removed.
	Unfriend(ctx context.Context, userID, personID uuid.UUID) error
	// PruneOrphan removes a remote person nothing references.
	PruneOrphan(ctx context.Context, personID uuid.UUID) (bool, error)
}

type LifecycleServiceImpl struct {
	life     repository.LifecycleRepository
	contacts repository.ContactRepository
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewLifecycleService constructs LifecycleService. m and log may be nil.
func NewLifecycleService(life repository.LifecycleRepository, contacts repository.ContactRepository, m *metrics.Metrics, log *zap.Logger) *LifecycleServiceImpl {
	if m == nil {
		m = metrics.New(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LifecycleServiceImpl{life: life, contacts: contacts, metrics: m, log: log}
}

// Destroy implements LifecycleService. The whole cascade is one transaction
// in the repository; an error means nothing was removed.
func (s *LifecycleServiceImpl) Destroy(ctx context.Context, personID uuid.UUID, opts DestroyOptions) (model.DestroyReport, error) {
	if personID == uuid.Nil {
		return model.DestroyReport{}, errors.New("validation: empty personID")
	}
	rep, err := s.life.DestroyPerson(ctx, personID, opts.Force)
	if err != nil {
		s.metrics.ObserveDestroy("error")
		return model.DestroyReport{PersonID: personID}, fmt.Errorf("destroy person %s: %w", personID, err)
	}
	result := "removed"
	if rep.Retained {
		result = "retained"
	}
	s.metrics.ObserveDestroy(result)
	s.log.Info("person destroyed",
		zap.String("person_id", personID.String()),
		zap.String("result", result),
		zap.Int64("posts", rep.PostsRemoved),
		zap.Int64("comments", rep.CommentsRemoved),
		zap.Int64("comments_kept", rep.CommentsKept),
		zap.Int64("contacts", rep.ContactsRemoved),
		zap.Bool("user_removed", rep.UserRemoved),
	)
	return rep, nil
}

// Befriend implements LifecycleService.
func (s *LifecycleServiceImpl) Befriend(ctx context.Context, userID, personID uuid.UUID, aspect string) error {
	if userID == uuid.Nil || personID == uuid.Nil {
		return errors.New("validation: userID/personID")
	}
	aspect = strings.TrimSpace(aspect)
	if aspect == "" {
		aspect = DefaultAspect
	}
	return s.contacts.Add(ctx, &model.Contact{UserID: userID, PersonID: personID, Aspect: aspect})
}

// Unfriend implements LifecycleService.
func (s *LifecycleServiceImpl) Unfriend(ctx context.Context, userID, personID uuid.UUID) error {
	if err := s.contacts.Remove(ctx, userID, personID); err != nil {
		return fmt.Errorf("unfriend: %w", err)
	}
	return nil
}

// PruneOrphan implements LifecycleService.
func (s *LifecycleServiceImpl) PruneOrphan(ctx context.Context, personID uuid.UUID) (bool, error) {
	removed, err := s.life.PruneOrphan(ctx, personID)
	if err != nil {
		return false, fmt.Errorf("prune person %s: %w", personID, err)
	}
	if removed {
		s.log.Info("orphan person pruned", zap.String("person_id", personID.String()))
	}
	return removed, nil
}

var _ LifecycleService = (*LifecycleServiceImpl)(nil)
