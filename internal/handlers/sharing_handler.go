package handlers

import (
	"context"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/internal/repositories"
	"github.com/asakaida/sharing/internal/services"
	"github.com/asakaida/sharing/internal/services/authorization"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// IdentityResolver resolves the caller identity
type IdentityResolver interface {
	GetUser(ctx context.Context, userID string) (*entities.User, error)
}

// SharingHandler handles all SharingService gRPC requests.
// Decisions are answered for the caller named in the x-user-id metadata.
// Grant management follows the admin rules: superusers manage everything,
// other callers need change on the target (view to list).
type SharingHandler struct {
	authority  authorization.AuthorityInterface
	shares     services.ShareServiceInterface
	identities IdentityResolver
}

// NewSharingHandler creates a new SharingHandler
func NewSharingHandler(
	authority authorization.AuthorityInterface,
	shares services.ShareServiceInterface,
	identities IdentityResolver,
) *SharingHandler {
	return &SharingHandler{
		authority:  authority,
		shares:     shares,
		identities: identities,
	}
}

// === Permission Decisions ===

// Check handles the Check RPC
// Request: {"permission": "view", "target": {"kind": "document", "id": "1"}}
func (h *SharingHandler) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	permission := getString(req, "permission")
	if permission == "" {
		return nil, status.Error(codes.InvalidArgument, "permission is required")
	}

	// A missing target is a denial, not an error
	target, err := optionalObjectRef(req, "target")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	user, err := h.caller(ctx)
	if err != nil {
		return nil, err
	}

	allowed, err := h.authority.HasPermission(ctx, user, permission, target)
	if err != nil {
		return nil, toStatus("check", err)
	}

	return newStruct(map[string]interface{}{"allowed": allowed})
}

// CheckMultiple handles the CheckMultiple RPC
// Request: {"permissions": ["view", "change"], "target": {...}}
func (h *SharingHandler) CheckMultiple(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	permissions, err := getStrings(req, "permissions")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if len(permissions) == 0 {
		return nil, status.Error(codes.InvalidArgument, "at least one permission is required")
	}

	target, err := optionalObjectRef(req, "target")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	user, err := h.caller(ctx)
	if err != nil {
		return nil, err
	}

	results, err := h.authority.CheckMultiple(ctx, user, permissions, target)
	if err != nil {
		return nil, toStatus("check multiple", err)
	}

	fields := make(map[string]interface{}, len(results))
	for perm, allowed := range results {
		fields[perm] = allowed
	}

	return newStruct(map[string]interface{}{"results": fields})
}

// Filter handles the Filter RPC
// Request: {"permission": "view", "targets": [{...}, ...]}
func (h *SharingHandler) Filter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	permission := getString(req, "permission")
	if permission == "" {
		return nil, status.Error(codes.InvalidArgument, "permission is required")
	}

	targets, err := objectRefsFromList(req, "targets")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	user, err := h.caller(ctx)
	if err != nil {
		return nil, err
	}

	filtered, err := h.authority.FilterByPermission(ctx, targets, permission, user)
	if err != nil {
		return nil, toStatus("filter", err)
	}

	return newStruct(map[string]interface{}{"targets": objectRefsToList(filtered)})
}

// === Grant Management ===

// CreateGrant handles the CreateGrant RPC
// Request: {"subject": {"kind": "user", "id": "bob"}, "target": {...}, "can_view": true, ...}
func (h *SharingHandler) CreateGrant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	subject, err := structToSubject(getStruct(req, "subject"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid subject: %v", err)
	}
	target, err := structToObjectRef(getStruct(req, "target"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid target: %v", err)
	}

	user, err := h.authenticatedCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.requireManage(ctx, user, entities.CapabilityChange, target); err != nil {
		return nil, err
	}

	grant, err := h.shares.CreateGrant(ctx, subject, target, capabilitiesFromStruct(req))
	if err != nil {
		return nil, toStatus("create grant", err)
	}

	return newStruct(map[string]interface{}{"grant": grantToMap(grant)})
}

// ListGrants handles the ListGrants RPC
// Request: {"target": {...}, "subject": {...}} (both optional for superusers)
func (h *SharingHandler) ListGrants(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := h.authenticatedCaller(ctx)
	if err != nil {
		return nil, err
	}

	filter := &repositories.GrantFilter{}
	if s := getStruct(req, "subject"); s != nil {
		filter.SubjectKind = entities.SubjectKind(getString(s, "kind"))
		filter.SubjectID = getString(s, "id")
	}

	target, err := optionalObjectRef(req, "target")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if target != nil {
		filter.TargetKind = target.Kind
		filter.TargetID = target.ID
	}

	if !user.Superuser {
		if target == nil {
			return nil, status.Error(codes.InvalidArgument, "target is required")
		}
		if err := h.requireManage(ctx, user, entities.CapabilityView, *target); err != nil {
			return nil, err
		}
	}

	grants, err := h.shares.ListGrants(ctx, filter)
	if err != nil {
		return nil, toStatus("list grants", err)
	}

	list := make([]interface{}, 0, len(grants))
	for _, g := range grants {
		list = append(list, grantToMap(g))
	}

	return newStruct(map[string]interface{}{"grants": list})
}

// UpdateGrant handles the UpdateGrant RPC
// Request: {"id": "...", "can_view": true, "can_change": false, "can_delete": false}
func (h *SharingHandler) UpdateGrant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := getString(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	user, err := h.authenticatedCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.requireGrantManage(ctx, user, id); err != nil {
		return nil, err
	}

	grant, err := h.shares.UpdateGrant(ctx, id, capabilitiesFromStruct(req))
	if err != nil {
		return nil, toStatus("update grant", err)
	}

	return newStruct(map[string]interface{}{"grant": grantToMap(grant)})
}

// DeleteGrant handles the DeleteGrant RPC
// Request: {"id": "..."}
func (h *SharingHandler) DeleteGrant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := getString(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	user, err := h.authenticatedCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.requireGrantManage(ctx, user, id); err != nil {
		return nil, err
	}

	if err := h.shares.DeleteGrant(ctx, id); err != nil {
		return nil, toStatus("delete grant", err)
	}

	return newStruct(map[string]interface{}{"deleted": true})
}

// EnsureOwnerGrant handles the EnsureOwnerGrant RPC
// Request: {"target": {...}}; the caller becomes the owner.
// Only an unshared target can be claimed; a shared one needs full rights already.
func (h *SharingHandler) EnsureOwnerGrant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	target, err := structToObjectRef(getStruct(req, "target"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid target: %v", err)
	}

	user, err := h.authenticatedCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.requireOwnerClaim(ctx, user, target); err != nil {
		return nil, err
	}

	grant, err := h.shares.EnsureOwnerGrant(ctx, user, target)
	if err != nil {
		return nil, toStatus("ensure owner grant", err)
	}

	return newStruct(map[string]interface{}{"grant": grantToMap(grant)})
}

// RevokeTarget handles the RevokeTarget RPC
// Request: {"target": {...}}
func (h *SharingHandler) RevokeTarget(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	target, err := structToObjectRef(getStruct(req, "target"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid target: %v", err)
	}

	user, err := h.authenticatedCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.requireManage(ctx, user, entities.CapabilityDelete, target); err != nil {
		return nil, err
	}

	deleted, err := h.shares.RevokeTarget(ctx, target)
	if err != nil {
		return nil, toStatus("revoke target", err)
	}

	return newStruct(map[string]interface{}{"deleted": deleted})
}

// PruneOrphans handles the PruneOrphans RPC (superusers only)
func (h *SharingHandler) PruneOrphans(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := h.authenticatedCaller(ctx)
	if err != nil {
		return nil, err
	}
	if !user.Superuser {
		return nil, status.Error(codes.PermissionDenied, "pruning requires a superuser")
	}

	pruned, err := h.shares.PruneOrphans(ctx)
	if err != nil {
		return nil, toStatus("prune orphans", err)
	}

	return newStruct(map[string]interface{}{"pruned": pruned})
}

// === Caller Resolution ===

// caller resolves the metadata identity; unknown callers are anonymous
func (h *SharingHandler) caller(ctx context.Context) (*entities.User, error) {
	userID := userIDFromContext(ctx)
	if userID == "" {
		return entities.Anonymous(), nil
	}

	user, err := h.identities.GetUser(ctx, userID)
	if err != nil {
		return nil, toStatus("resolve caller", err)
	}
	return user, nil
}

func (h *SharingHandler) authenticatedCaller(ctx context.Context) (*entities.User, error) {
	user, err := h.caller(ctx)
	if err != nil {
		return nil, err
	}
	if user.IsAnonymous() {
		return nil, status.Error(codes.Unauthenticated, "grant management requires an authenticated caller")
	}
	return user, nil
}

// requireManage checks that a non-superuser holds capability on target
func (h *SharingHandler) requireManage(ctx context.Context, user *entities.User, capability entities.Capability, target entities.ObjectRef) error {
	if user.Superuser {
		return nil
	}

	allowed, err := h.authority.Check(ctx, user, capability, &target)
	if err != nil {
		return toStatus("check", err)
	}
	if !allowed {
		return status.Errorf(codes.PermissionDenied, "%s on %s is required", capability, target)
	}
	return nil
}

// requireOwnerClaim lets a non-superuser claim target only while nobody holds
// a grant on it, or when the caller already holds every capability
func (h *SharingHandler) requireOwnerClaim(ctx context.Context, user *entities.User, target entities.ObjectRef) error {
	if user.Superuser {
		return nil
	}

	existing, err := h.shares.ListGrants(ctx, &repositories.GrantFilter{
		TargetKind: target.Kind,
		TargetID:   target.ID,
	})
	if err != nil {
		return toStatus("list grants", err)
	}
	if len(existing) == 0 {
		return nil
	}

	for _, capability := range entities.AllCapabilities {
		if err := h.requireManage(ctx, user, capability, target); err != nil {
			return err
		}
	}
	return nil
}

// requireGrantManage checks change on the target of an existing grant
func (h *SharingHandler) requireGrantManage(ctx context.Context, user *entities.User, id string) error {
	if user.Superuser {
		return nil
	}

	grant, err := h.shares.GetGrant(ctx, id)
	if err != nil {
		return toStatus("get grant", err)
	}
	return h.requireManage(ctx, user, entities.CapabilityChange, grant.Target)
}

// Ensure SharingHandler implements SharingServiceServer.
var _ SharingServiceServer = (*SharingHandler)(nil)
