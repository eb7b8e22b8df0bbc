package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/internal/repositories"
	"github.com/asakaida/sharing/pkg/cache"
)

var (
	// ErrInvalidGrant is returned when a grant request fails validation
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrTargetNotFound is returned when a grant names an object its registry reports missing
	ErrTargetNotFound = errors.New("target object not found")

	// ErrAnonymousOwner is returned when an owner grant is requested for an unauthenticated user
	ErrAnonymousOwner = errors.New("owner must be an authenticated user")
)

// ExistenceChecker resolves whether a referenced object still exists.
// known is false for kinds it has no check for.
type ExistenceChecker interface {
	Exists(ctx context.Context, ref entities.ObjectRef) (known bool, exists bool, err error)
}

// ShareServiceInterface defines the interface for grant management operations
type ShareServiceInterface interface {
	CreateGrant(ctx context.Context, subject entities.Subject, target entities.ObjectRef, caps entities.CapabilitySet) (*entities.Grant, error)
	GetGrant(ctx context.Context, id string) (*entities.Grant, error)
	ListGrants(ctx context.Context, filter *repositories.GrantFilter) ([]*entities.Grant, error)
	UpdateGrant(ctx context.Context, id string, caps entities.CapabilitySet) (*entities.Grant, error)
	DeleteGrant(ctx context.Context, id string) error
	EnsureOwnerGrant(ctx context.Context, user *entities.User, target entities.ObjectRef) (*entities.Grant, error)
	RevokeTarget(ctx context.Context, target entities.ObjectRef) (int64, error)
	PruneOrphans(ctx context.Context) (int64, error)
}

// ShareService handles grant management operations
type ShareService struct {
	shareRepo repositories.ShareRepository
	objects   ExistenceChecker     // Optional
	revisions cache.RevisionSource // Optional, advanced after every mutation
}

// NewShareService creates a new ShareService
func NewShareService(shareRepo repositories.ShareRepository, objects ExistenceChecker, revisions cache.RevisionSource) *ShareService {
	return &ShareService{
		shareRepo: shareRepo,
		objects:   objects,
		revisions: revisions,
	}
}

// CreateGrant shares target with subject.
// Grants on objects the registry reports missing are rejected.
func (s *ShareService) CreateGrant(ctx context.Context, subject entities.Subject, target entities.ObjectRef, caps entities.CapabilitySet) (*entities.Grant, error) {
	grant := entities.NewGrant(subject, target, caps)
	if err := grant.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}

	if err := s.requireTarget(ctx, target); err != nil {
		return nil, err
	}

	created, err := s.shareRepo.Create(ctx, grant)
	if err != nil {
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	s.invalidate(ctx)
	return created, nil
}

// GetGrant retrieves a grant by ID
func (s *ShareService) GetGrant(ctx context.Context, id string) (*entities.Grant, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: grant ID is required", ErrInvalidGrant)
	}

	grant, err := s.shareRepo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}

	return grant, nil
}

// ListGrants retrieves grants matching the filter
func (s *ShareService) ListGrants(ctx context.Context, filter *repositories.GrantFilter) ([]*entities.Grant, error) {
	if filter != nil && filter.SubjectKind != "" && !filter.SubjectKind.Valid() {
		return nil, fmt.Errorf("%w: unknown subject kind %q", ErrInvalidGrant, filter.SubjectKind)
	}

	grants, err := s.shareRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}

	return grants, nil
}

// UpdateGrant replaces the capability flags of a grant
func (s *ShareService) UpdateGrant(ctx context.Context, id string, caps entities.CapabilitySet) (*entities.Grant, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: grant ID is required", ErrInvalidGrant)
	}

	grant, err := s.shareRepo.UpdateCapabilities(ctx, id, caps)
	if err != nil {
		return nil, fmt.Errorf("failed to update grant: %w", err)
	}

	s.invalidate(ctx)
	return grant, nil
}

// DeleteGrant revokes a grant
func (s *ShareService) DeleteGrant(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: grant ID is required", ErrInvalidGrant)
	}

	if err := s.shareRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}

	s.invalidate(ctx)
	return nil
}

// EnsureOwnerGrant gives the creator of an object full capabilities on it.
// An existing full grant is returned as is; partial grants are left untouched.
func (s *ShareService) EnsureOwnerGrant(ctx context.Context, user *entities.User, target entities.ObjectRef) (*entities.Grant, error) {
	if user.IsAnonymous() {
		return nil, ErrAnonymousOwner
	}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid target: %v", ErrInvalidGrant, err)
	}

	existing, err := s.shareRepo.GrantsForUserAndTarget(ctx, user.ID, target)
	if err != nil {
		return nil, fmt.Errorf("failed to read owner grants: %w", err)
	}
	full := entities.FullCapabilities()
	for _, g := range existing {
		if g.Capabilities() == full {
			return g, nil
		}
	}

	return s.CreateGrant(ctx, entities.UserSubject(user.ID), target, full)
}

// RevokeTarget deletes every grant of an object that no longer exists
func (s *ShareService) RevokeTarget(ctx context.Context, target entities.ObjectRef) (int64, error) {
	if err := target.Validate(); err != nil {
		return 0, fmt.Errorf("%w: invalid target: %v", ErrInvalidGrant, err)
	}

	deleted, err := s.shareRepo.DeleteByTarget(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke target %s: %w", target, err)
	}

	if deleted > 0 {
		s.invalidate(ctx)
	}
	return deleted, nil
}

// PruneOrphans deletes the grants of every target the registry reports missing.
// Targets of kinds without a registered check are kept. Deletions made before
// a failure stay deleted and still advance the revision.
func (s *ShareService) PruneOrphans(ctx context.Context) (pruned int64, err error) {
	if s.objects == nil {
		return 0, nil
	}

	targets, err := s.shareRepo.ListTargets(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list grant targets: %w", err)
	}

	defer func() {
		if pruned > 0 {
			s.invalidate(ctx)
		}
	}()

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}

		known, exists, err := s.objects.Exists(ctx, target)
		if err != nil {
			return pruned, fmt.Errorf("failed to prune orphans: %w", err)
		}
		if !known || exists {
			continue
		}

		deleted, err := s.shareRepo.DeleteByTarget(ctx, target)
		if err != nil {
			return pruned, fmt.Errorf("failed to prune grants of %s: %w", target, err)
		}
		pruned += deleted
	}

	return pruned, nil
}

// requireTarget rejects targets the registry knows to be missing
func (s *ShareService) requireTarget(ctx context.Context, target entities.ObjectRef) error {
	if s.objects == nil {
		return nil
	}

	known, exists, err := s.objects.Exists(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to check target: %w", err)
	}
	if known && !exists {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	}

	return nil
}

func (s *ShareService) invalidate(ctx context.Context) {
	if s.revisions == nil {
		return
	}
	if err := s.revisions.Invalidate(ctx); err != nil {
		// Cached decisions still expire by TTL
		log.Printf("failed to advance grant revision: %v", err)
	}
}
