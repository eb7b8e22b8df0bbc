package resource

import (
	"context"
	"fmt"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/internal/services/authorization"
)

// Guarded enforces grants around a Handler.
// Superusers bypass every check, as the admin layer they stand in for did.
type Guarded struct {
	kind      string
	handler   Handler
	authority authorization.AuthorityInterface
	shares    Sharer
}

// Kind returns the object kind the guard protects
func (g *Guarded) Kind() string {
	return g.kind
}

// List returns the objects the user may view, in handler order
func (g *Guarded) List(ctx context.Context, user *entities.User) ([]Object, error) {
	objects, err := g.handler.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", g.kind, err)
	}

	if isSuperuser(user) {
		return objects, nil
	}

	refs := make([]entities.ObjectRef, len(objects))
	for i, obj := range objects {
		refs[i] = obj.Ref()
	}

	visible, err := g.authority.FilterByPermission(ctx, refs, entities.CapabilityView.Permission(g.kind), user)
	if err != nil {
		return nil, fmt.Errorf("failed to filter %s: %w", g.kind, err)
	}

	allowed := make(map[entities.ObjectRef]bool, len(visible))
	for _, ref := range visible {
		allowed[ref] = true
	}

	filtered := make([]Object, 0, len(visible))
	for _, obj := range objects {
		if allowed[obj.Ref()] {
			filtered = append(filtered, obj)
		}
	}
	return filtered, nil
}

// Get returns an object the user may view
func (g *Guarded) Get(ctx context.Context, user *entities.User, id string) (Object, error) {
	if err := g.require(ctx, user, entities.CapabilityView, entities.NewObjectRef(g.kind, id)); err != nil {
		return nil, err
	}

	obj, err := g.handler.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", g.kind, id, err)
	}
	return obj, nil
}

// Save creates or updates an object.
// Creation needs an authenticated user and gives them an owner grant;
// updates need the change capability.
func (g *Guarded) Save(ctx context.Context, user *entities.User, obj Object, isNew bool) (Object, error) {
	if isNew {
		if user.IsAnonymous() {
			return nil, fmt.Errorf("%w: anonymous users cannot create %s", ErrPermissionDenied, g.kind)
		}
	} else if err := g.require(ctx, user, entities.CapabilityChange, obj.Ref()); err != nil {
		return nil, err
	}

	saved, err := g.handler.Save(ctx, obj, isNew)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", g.kind, err)
	}

	if isNew {
		if _, err := g.shares.EnsureOwnerGrant(ctx, user, saved.Ref()); err != nil {
			return nil, fmt.Errorf("failed to grant owner access: %w", err)
		}
	}

	return saved, nil
}

// Delete removes an object the user may delete and revokes its grants
func (g *Guarded) Delete(ctx context.Context, user *entities.User, id string) error {
	ref := entities.NewObjectRef(g.kind, id)
	if err := g.require(ctx, user, entities.CapabilityDelete, ref); err != nil {
		return err
	}

	if err := g.handler.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", g.kind, id, err)
	}

	if _, err := g.shares.RevokeTarget(ctx, ref); err != nil {
		return fmt.Errorf("failed to revoke grants of %s: %w", ref, err)
	}
	return nil
}

func (g *Guarded) require(ctx context.Context, user *entities.User, capability entities.Capability, ref entities.ObjectRef) error {
	if isSuperuser(user) {
		return nil
	}

	allowed, err := g.authority.Check(ctx, user, capability, &ref)
	if err != nil {
		return fmt.Errorf("failed to check %s on %s: %w", capability, ref, err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s on %s", ErrPermissionDenied, capability, ref)
	}
	return nil
}

func isSuperuser(user *entities.User) bool {
	return !user.IsAnonymous() && user.Superuser
}
