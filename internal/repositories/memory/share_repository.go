package memory

import (
	"context"
	"sync"
	"time"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/internal/repositories"
	"github.com/google/uuid"
)

// ShareRepository is an in-memory implementation of repositories.ShareRepository.
// Grants are kept in creation order.
type ShareRepository struct {
	mu     sync.RWMutex
	grants []*entities.Grant
	now    func() time.Time
}

// NewShareRepository creates a new in-memory share repository
func NewShareRepository() *ShareRepository {
	return &ShareRepository{now: time.Now}
}

// Create stores a copy of the grant with a fresh ID
func (r *ShareRepository) Create(ctx context.Context, grant *entities.Grant) (*entities.Grant, error) {
	if err := grant.Validate(); err != nil {
		return nil, err
	}

	now := r.now()
	stored := *grant
	stored.ID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.mu.Lock()
	r.grants = append(r.grants, &stored)
	r.mu.Unlock()

	return copyGrant(&stored), nil
}

// Get retrieves a grant by ID
func (r *ShareRepository) Get(ctx context.Context, id string) (*entities.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		return copyGrant(r.grants[i]), nil
	}
	return nil, repositories.ErrGrantNotFound
}

// List retrieves grants matching the filter
func (r *ShareRepository) List(ctx context.Context, filter *repositories.GrantFilter) ([]*entities.Grant, error) {
	return r.collect(func(g *entities.Grant) bool {
		if filter == nil {
			return true
		}
		if filter.TargetKind != "" && g.Target.Kind != filter.TargetKind {
			return false
		}
		if filter.TargetID != "" && g.Target.ID != filter.TargetID {
			return false
		}
		if filter.SubjectKind != "" && g.Subject.Kind != filter.SubjectKind {
			return false
		}
		if filter.SubjectID != "" && g.Subject.ID != filter.SubjectID {
			return false
		}
		return true
	}), nil
}

// UpdateCapabilities replaces the capability flags of a grant
func (r *ShareRepository) UpdateCapabilities(ctx context.Context, id string, caps entities.CapabilitySet) (*entities.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, repositories.ErrGrantNotFound
	}

	// Replace rather than mutate so copies handed out earlier stay unchanged
	updated := *r.grants[i]
	updated.SetCapabilities(caps)
	updated.UpdatedAt = r.now()
	r.grants[i] = &updated

	return copyGrant(&updated), nil
}

// Delete removes a grant
func (r *ShareRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return repositories.ErrGrantNotFound
	}
	r.grants = append(r.grants[:i], r.grants[i+1:]...)
	return nil
}

// DeleteByTarget removes every grant referencing the target
func (r *ShareRepository) DeleteByTarget(ctx context.Context, target entities.ObjectRef) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.grants[:0]
	var deleted int64
	for _, g := range r.grants {
		if g.Target == target {
			deleted++
			continue
		}
		kept = append(kept, g)
	}
	// Clear the tail so removed grants can be collected
	for i := len(kept); i < len(r.grants); i++ {
		r.grants[i] = nil
	}
	r.grants = kept

	return deleted, nil
}

// ListTargets returns the distinct targets in first-seen order
func (r *ShareRepository) ListTargets(ctx context.Context) ([]entities.ObjectRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[entities.ObjectRef]struct{})
	targets := make([]entities.ObjectRef, 0)
	for _, g := range r.grants {
		if _, ok := seen[g.Target]; ok {
			continue
		}
		seen[g.Target] = struct{}{}
		targets = append(targets, g.Target)
	}
	return targets, nil
}

// GrantsForUserAndTarget retrieves the user grants of a user on a target
func (r *ShareRepository) GrantsForUserAndTarget(ctx context.Context, userID string, target entities.ObjectRef) ([]*entities.Grant, error) {
	return r.GrantsForUserAndTargets(ctx, userID, []entities.ObjectRef{target})
}

// GrantsForGroupsAndTarget retrieves the group grants of any of the groups on a target
func (r *ShareRepository) GrantsForGroupsAndTarget(ctx context.Context, groupIDs []string, target entities.ObjectRef) ([]*entities.Grant, error) {
	return r.GrantsForGroupsAndTargets(ctx, groupIDs, []entities.ObjectRef{target})
}

// GrantsForUserAndTargets retrieves the user grants of a user on any of the targets
func (r *ShareRepository) GrantsForUserAndTargets(ctx context.Context, userID string, targets []entities.ObjectRef) ([]*entities.Grant, error) {
	wanted := targetSet(targets)
	return r.collect(func(g *entities.Grant) bool {
		_, ok := wanted[g.Target]
		return ok && g.Subject.Kind == entities.SubjectUser && g.Subject.ID == userID
	}), nil
}

// GrantsForGroupsAndTargets retrieves the group grants of any of the groups on any of the targets
func (r *ShareRepository) GrantsForGroupsAndTargets(ctx context.Context, groupIDs []string, targets []entities.ObjectRef) ([]*entities.Grant, error) {
	if len(groupIDs) == 0 || len(targets) == 0 {
		return []*entities.Grant{}, nil
	}

	groups := make(map[string]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		groups[id] = struct{}{}
	}
	wanted := targetSet(targets)

	return r.collect(func(g *entities.Grant) bool {
		if g.Subject.Kind != entities.SubjectGroup {
			return false
		}
		if _, ok := groups[g.Subject.ID]; !ok {
			return false
		}
		_, ok := wanted[g.Target]
		return ok
	}), nil
}

// Len returns the number of stored grants
func (r *ShareRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.grants)
}

// collect returns copies of the grants accepted by match (must be called without lock held)
func (r *ShareRepository) collect(match func(*entities.Grant) bool) []*entities.Grant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Grant, 0)
	for _, g := range r.grants {
		if match(g) {
			result = append(result, copyGrant(g))
		}
	}
	return result
}

// indexOf returns the position of a grant or -1 (must be called with lock held)
func (r *ShareRepository) indexOf(id string) int {
	for i, g := range r.grants {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func targetSet(targets []entities.ObjectRef) map[entities.ObjectRef]struct{} {
	set := make(map[entities.ObjectRef]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}
	return set
}

func copyGrant(g *entities.Grant) *entities.Grant {
	c := *g
	return &c
}

// Ensure ShareRepository implements repositories.ShareRepository.
var _ repositories.ShareRepository = (*ShareRepository)(nil)
