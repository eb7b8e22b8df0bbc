package authorization

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/pkg/cache"
)

// AuthorityInterface defines the interface for grant-based permission decisions
type AuthorityInterface interface {
	HasPermission(ctx context.Context, user *entities.User, perm string, target *entities.ObjectRef) (bool, error)
	Check(ctx context.Context, user *entities.User, capability entities.Capability, target *entities.ObjectRef) (bool, error)
	CheckMultiple(ctx context.Context, user *entities.User, perms []string, target *entities.ObjectRef) (map[string]bool, error)
	FilterByPermission(ctx context.Context, collection []entities.ObjectRef, perm string, user *entities.User) ([]entities.ObjectRef, error)
}

// GrantReader is the read side of the share store used for decisions
type GrantReader interface {
	GrantsForUserAndTarget(ctx context.Context, userID string, target entities.ObjectRef) ([]*entities.Grant, error)
	GrantsForGroupsAndTarget(ctx context.Context, groupIDs []string, target entities.ObjectRef) ([]*entities.Grant, error)
	GrantsForUserAndTargets(ctx context.Context, userID string, targets []entities.ObjectRef) ([]*entities.Grant, error)
	GrantsForGroupsAndTargets(ctx context.Context, groupIDs []string, targets []entities.ObjectRef) ([]*entities.Grant, error)
}

// DecisionRecorder receives the outcome of every resolved check
type DecisionRecorder interface {
	RecordDecision(capability string, allowed bool)
}

// Authority answers grant-based permission questions.
// It never applies a superuser bypass; that policy belongs to callers.
type Authority struct {
	store     GrantReader
	cache     cache.Cache          // Optional decision cache
	revisions cache.RevisionSource // Required when cache is set
	cacheTTL  time.Duration
	recorder  DecisionRecorder // Optional
}

// NewAuthority creates a new Authority without caching
func NewAuthority(store GrantReader) *Authority {
	return &Authority{store: store}
}

// NewAuthorityWithCache creates a new Authority with decision caching enabled
func NewAuthorityWithCache(
	store GrantReader,
	c cache.Cache,
	revisions cache.RevisionSource,
	cacheTTL time.Duration,
) *Authority {
	return &Authority{
		store:     store,
		cache:     c,
		revisions: revisions,
		cacheTTL:  cacheTTL,
	}
}

// SetDecisionRecorder sets the recorder notified of each decision
func (a *Authority) SetDecisionRecorder(recorder DecisionRecorder) {
	a.recorder = recorder
}

// HasPermission reports whether user may exercise the permission on target.
// perm is any identifier ParseCapability understands ("view", "app.change_thing").
// A nil target, an anonymous user or an unresolvable permission deny without error.
func (a *Authority) HasPermission(ctx context.Context, user *entities.User, perm string, target *entities.ObjectRef) (bool, error) {
	if target == nil || user.IsAnonymous() {
		return false, nil
	}

	capability, ok := entities.ParseCapability(perm)
	if !ok {
		return false, nil
	}

	return a.Check(ctx, user, capability, target)
}

// Check is the typed form of HasPermission
func (a *Authority) Check(ctx context.Context, user *entities.User, capability entities.Capability, target *entities.ObjectRef) (bool, error) {
	if target == nil || user.IsAnonymous() || capability == entities.CapabilityUnknown {
		return false, nil
	}

	useCache := a.cache != nil && a.revisions != nil
	var cacheKey, revision string

	if useCache {
		var err error
		revision, err = a.revisions.CurrentRevision(ctx)
		if err != nil {
			// Continue without cache
			useCache = false
		} else {
			cacheKey = a.generateCacheKey(user, capability, *target, revision)
			if cached, found := a.cache.Get(ctx, cacheKey); found {
				if allowed, ok := cached.(bool); ok {
					a.record(capability, allowed)
					return allowed, nil
				}
			}
		}
	}

	allowed, err := a.resolve(ctx, user, capability, *target)
	if err != nil {
		return false, err
	}

	// Grants that changed while resolving may not be reflected in allowed,
	// so only a decision made under a still-current revision is cached
	if useCache && a.revisionUnchanged(ctx, revision) {
		_ = a.cache.Set(ctx, cacheKey, allowed, a.cacheTTL)
	}

	a.record(capability, allowed)
	return allowed, nil
}

// resolve consults direct grants first and falls back to group grants
func (a *Authority) resolve(ctx context.Context, user *entities.User, capability entities.Capability, target entities.ObjectRef) (bool, error) {
	direct, err := a.store.GrantsForUserAndTarget(ctx, user.ID, target)
	if err != nil {
		return false, fmt.Errorf("failed to read user grants: %w", err)
	}
	if entities.AnyAllows(direct, capability) {
		return true, nil
	}

	if len(user.Groups) == 0 {
		return false, nil
	}

	inherited, err := a.store.GrantsForGroupsAndTarget(ctx, user.Groups, target)
	if err != nil {
		return false, fmt.Errorf("failed to read group grants: %w", err)
	}

	return entities.AnyAllows(inherited, capability), nil
}

// CheckMultiple resolves several permissions on one target.
// Grants are read at most once per subject kind for the whole set.
func (a *Authority) CheckMultiple(ctx context.Context, user *entities.User, perms []string, target *entities.ObjectRef) (map[string]bool, error) {
	results := make(map[string]bool, len(perms))
	for _, perm := range perms {
		results[perm] = false
	}

	if target == nil || user.IsAnonymous() {
		return results, nil
	}

	pending := make(map[string]entities.Capability)
	for _, perm := range perms {
		if capability, ok := entities.ParseCapability(perm); ok {
			pending[perm] = capability
		}
	}
	if len(pending) == 0 {
		return results, nil
	}

	direct, err := a.store.GrantsForUserAndTarget(ctx, user.ID, *target)
	if err != nil {
		return nil, fmt.Errorf("failed to read user grants: %w", err)
	}
	for perm, capability := range pending {
		if entities.AnyAllows(direct, capability) {
			results[perm] = true
			delete(pending, perm)
		}
	}

	if len(pending) > 0 && len(user.Groups) > 0 {
		inherited, err := a.store.GrantsForGroupsAndTarget(ctx, user.Groups, *target)
		if err != nil {
			return nil, fmt.Errorf("failed to read group grants: %w", err)
		}
		for perm, capability := range pending {
			results[perm] = entities.AnyAllows(inherited, capability)
		}
	}

	for _, perm := range perms {
		if capability, ok := entities.ParseCapability(perm); ok {
			a.record(capability, results[perm])
		}
	}

	return results, nil
}

// FilterByPermission keeps the elements of collection the user may act on,
// preserving their relative order. A user always keeps their own identity
// record. Grant lookups are batched: one direct query, then one group query
// for targets still undecided.
func (a *Authority) FilterByPermission(ctx context.Context, collection []entities.ObjectRef, perm string, user *entities.User) ([]entities.ObjectRef, error) {
	filtered := make([]entities.ObjectRef, 0)
	if len(collection) == 0 || user.IsAnonymous() {
		return filtered, nil
	}

	capability, ok := entities.ParseCapability(perm)
	if !ok {
		return filtered, nil
	}

	allowed := make(map[entities.ObjectRef]bool, len(collection))
	for _, ref := range collection {
		if user.Owns(ref) {
			allowed[ref] = true
		}
	}

	undecided := undecidedTargets(collection, allowed)
	if len(undecided) > 0 {
		direct, err := a.store.GrantsForUserAndTargets(ctx, user.ID, undecided)
		if err != nil {
			return nil, fmt.Errorf("failed to read user grants: %w", err)
		}
		markAllowed(allowed, direct, capability)
	}

	undecided = undecidedTargets(collection, allowed)
	if len(undecided) > 0 && len(user.Groups) > 0 {
		inherited, err := a.store.GrantsForGroupsAndTargets(ctx, user.Groups, undecided)
		if err != nil {
			return nil, fmt.Errorf("failed to read group grants: %w", err)
		}
		markAllowed(allowed, inherited, capability)
	}

	recorded := make(map[entities.ObjectRef]bool, len(collection))
	for _, ref := range collection {
		if allowed[ref] {
			filtered = append(filtered, ref)
		}
		if !recorded[ref] {
			recorded[ref] = true
			a.record(capability, allowed[ref])
		}
	}

	return filtered, nil
}

// generateCacheKey generates a cache key for a decision
func (a *Authority) generateCacheKey(user *entities.User, capability entities.Capability, target entities.ObjectRef, revision string) string {
	groups := append([]string(nil), user.Groups...)
	sort.Strings(groups)

	// Group membership is part of the key so membership changes never hit stale entries
	keyData := fmt.Sprintf("%s|%s|%s|%s|%s",
		user.ID,
		strings.Join(groups, ","),
		capability.String(),
		target.String(),
		revision,
	)
	hash := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(hash[:])
}

// revisionUnchanged reports whether the grant revision is still revision
func (a *Authority) revisionUnchanged(ctx context.Context, revision string) bool {
	current, err := a.revisions.CurrentRevision(ctx)
	return err == nil && current == revision
}

func (a *Authority) record(capability entities.Capability, allowed bool) {
	if a.recorder != nil {
		a.recorder.RecordDecision(capability.String(), allowed)
	}
}

// undecidedTargets returns the distinct targets of collection not yet allowed
func undecidedTargets(collection []entities.ObjectRef, allowed map[entities.ObjectRef]bool) []entities.ObjectRef {
	seen := make(map[entities.ObjectRef]bool, len(collection))
	targets := make([]entities.ObjectRef, 0, len(collection))
	for _, ref := range collection {
		if allowed[ref] || seen[ref] {
			continue
		}
		seen[ref] = true
		targets = append(targets, ref)
	}
	return targets
}

func markAllowed(allowed map[entities.ObjectRef]bool, grants []*entities.Grant, capability entities.Capability) {
	for _, g := range grants {
		if g != nil && g.Allows(capability) {
			allowed[g.Target] = true
		}
	}
}
