package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/internal/repositories"
)

type userRecord struct {
	superuser bool
	groups    map[string]struct{}
}

// IdentityRepository is an in-memory implementation of repositories.IdentityRepository.
type IdentityRepository struct {
	mu    sync.RWMutex
	users map[string]*userRecord
}

// NewIdentityRepository creates a new in-memory identity repository
func NewIdentityRepository() *IdentityRepository {
	return &IdentityRepository{
		users: make(map[string]*userRecord),
	}
}

// PutUser creates or updates a user record
func (r *IdentityRepository) PutUser(userID string, superuser bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.users[userID]; ok {
		rec.superuser = superuser
		return
	}
	r.users[userID] = &userRecord{superuser: superuser, groups: make(map[string]struct{})}
}

// RemoveUser deletes a user record and its memberships
func (r *IdentityRepository) RemoveUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, userID)
}

// GetUser resolves a user ID with its current groups (sorted)
func (r *IdentityRepository) GetUser(ctx context.Context, userID string) (*entities.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.users[userID]
	if !ok || userID == "" {
		return entities.Anonymous(), nil
	}

	groups := make([]string, 0, len(rec.groups))
	for g := range rec.groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	return &entities.User{
		ID:            userID,
		Authenticated: true,
		Superuser:     rec.superuser,
		Groups:        groups,
	}, nil
}

// UserExists checks if a user record exists
func (r *IdentityRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok, nil
}

// AddMember adds a user to a group, creating the user record if needed
func (r *IdentityRepository) AddMember(ctx context.Context, userID string, groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[userID]
	if !ok {
		rec = &userRecord{groups: make(map[string]struct{})}
		r.users[userID] = rec
	}
	rec.groups[groupID] = struct{}{}
	return nil
}

// RemoveMember removes a user from a group
func (r *IdentityRepository) RemoveMember(ctx context.Context, userID string, groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.users[userID]; ok {
		delete(rec.groups, groupID)
	}
	return nil
}

// Ensure IdentityRepository implements repositories.IdentityRepository.
var _ repositories.IdentityRepository = (*IdentityRepository)(nil)
