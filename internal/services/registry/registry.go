package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/asakaida/sharing/internal/entities"
)

// ExistsFunc reports whether the object with the given ID still exists
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// Registry maps object kinds to existence checks supplied by the
// collaborators that own those objects
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]ExistsFunc
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{kinds: make(map[string]ExistsFunc)}
}

// Register installs the existence check for a kind, replacing any previous one
func (r *Registry) Register(kind string, exists ExistsFunc) error {
	if kind == "" {
		return fmt.Errorf("object kind is required")
	}
	if exists == nil {
		return fmt.Errorf("existence check for kind %s is required", kind)
	}

	r.mu.Lock()
	r.kinds[kind] = exists
	r.mu.Unlock()
	return nil
}

// Exists resolves ref through the check registered for its kind.
// known is false when no check is registered; exists is then meaningless.
func (r *Registry) Exists(ctx context.Context, ref entities.ObjectRef) (known bool, exists bool, err error) {
	r.mu.RLock()
	check, ok := r.kinds[ref.Kind]
	r.mu.RUnlock()

	if !ok {
		return false, false, nil
	}

	exists, err = check(ctx, ref.ID)
	if err != nil {
		return true, false, fmt.Errorf("failed to check existence of %s: %w", ref, err)
	}

	return true, exists, nil
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.kinds))
	for kind := range r.kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
