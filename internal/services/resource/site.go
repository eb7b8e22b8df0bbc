package resource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/internal/services/authorization"
	"github.com/asakaida/sharing/internal/services/registry"
)

var (
	// ErrPermissionDenied is returned when the caller lacks the required capability
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnknownKind is returned for object kinds no handler is registered for
	ErrUnknownKind = errors.New("unknown object kind")
)

// Object is a shareable record managed by a resource handler
type Object interface {
	Ref() entities.ObjectRef
}

// Handler is supplied by the collaborator owning one object kind
type Handler interface {
	List(ctx context.Context) ([]Object, error)
	Get(ctx context.Context, id string) (Object, error)
	// Save persists obj; isNew is true on creation
	Save(ctx context.Context, obj Object, isNew bool) (Object, error)
	Delete(ctx context.Context, id string) error
}

// ExistenceReporter is implemented by handlers that can tell whether an object still exists
type ExistenceReporter interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Sharer is the grant side effect of resource mutations
type Sharer interface {
	EnsureOwnerGrant(ctx context.Context, user *entities.User, target entities.ObjectRef) (*entities.Grant, error)
	RevokeTarget(ctx context.Context, target entities.ObjectRef) (int64, error)
}

// KindRegistrar receives existence checks of registered kinds
type KindRegistrar interface {
	Register(kind string, exists registry.ExistsFunc) error
}

// Site composes the authority around every registered handler
type Site struct {
	authority authorization.AuthorityInterface
	shares    Sharer
	objects   KindRegistrar // Optional

	mu       sync.RWMutex
	handlers map[string]*Guarded
}

// NewSite creates a new Site.
// objects may be nil when handlers do not take part in orphan pruning.
func NewSite(authority authorization.AuthorityInterface, shares Sharer, objects KindRegistrar) *Site {
	return &Site{
		authority: authority,
		shares:    shares,
		objects:   objects,
		handlers:  make(map[string]*Guarded),
	}
}

// Register wraps handler in a permission guard for kind.
// Handlers implementing ExistenceReporter are also registered with the object registry.
func (s *Site) Register(kind string, handler Handler) (*Guarded, error) {
	if kind == "" {
		return nil, fmt.Errorf("object kind is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler for kind %s is required", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[kind]; exists {
		return nil, fmt.Errorf("kind %s is already registered", kind)
	}

	if reporter, ok := handler.(ExistenceReporter); ok && s.objects != nil {
		if err := s.objects.Register(kind, reporter.Exists); err != nil {
			return nil, fmt.Errorf("failed to register existence check: %w", err)
		}
	}

	guarded := &Guarded{
		kind:      kind,
		handler:   handler,
		authority: s.authority,
		shares:    s.shares,
	}
	s.handlers[kind] = guarded
	return guarded, nil
}

// Handler returns the guarded handler of kind
func (s *Site) Handler(kind string) (*Guarded, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guarded, ok := s.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return guarded, nil
}

// Kinds returns the registered kinds in sorted order
func (s *Site) Kinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]string, 0, len(s.handlers))
	for kind := range s.handlers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
