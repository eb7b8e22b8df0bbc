package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/internal/repositories"
	"github.com/asakaida/sharing/internal/services"
	"github.com/asakaida/sharing/internal/services/resource"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// UserIDMetadataKey carries the caller identity
const UserIDMetadataKey = "x-user-id"

// === Shared Helper Functions for all handlers ===

// userIDFromContext returns the caller ID from incoming metadata, or ""
func userIDFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(UserIDMetadataKey)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func getString(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

func getBool(s *structpb.Struct, key string) bool {
	if s == nil {
		return false
	}
	return s.GetFields()[key].GetBoolValue()
}

func getStruct(s *structpb.Struct, key string) *structpb.Struct {
	if s == nil {
		return nil
	}
	return s.GetFields()[key].GetStructValue()
}

func getStrings(s *structpb.Struct, key string) ([]string, error) {
	list := s.GetFields()[key].GetListValue()
	if list == nil {
		return nil, nil
	}

	values := make([]string, 0, len(list.Values))
	for i, v := range list.Values {
		str, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", key, i)
		}
		values = append(values, str.StringValue)
	}
	return values, nil
}

// structToObjectRef converts {"kind": ..., "id": ...} to an ObjectRef
func structToObjectRef(s *structpb.Struct) (entities.ObjectRef, error) {
	if s == nil {
		return entities.ObjectRef{}, fmt.Errorf("object reference is required")
	}
	ref := entities.NewObjectRef(getString(s, "kind"), getString(s, "id"))
	if err := ref.Validate(); err != nil {
		return entities.ObjectRef{}, err
	}
	return ref, nil
}

// optionalObjectRef returns nil when key is absent
func optionalObjectRef(s *structpb.Struct, key string) (*entities.ObjectRef, error) {
	inner := getStruct(s, key)
	if inner == nil {
		return nil, nil
	}
	ref, err := structToObjectRef(inner)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", key, err)
	}
	return &ref, nil
}

func objectRefsFromList(s *structpb.Struct, key string) ([]entities.ObjectRef, error) {
	list := s.GetFields()[key].GetListValue()
	if list == nil {
		return nil, nil
	}

	refs := make([]entities.ObjectRef, 0, len(list.Values))
	for i, v := range list.Values {
		ref, err := structToObjectRef(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("invalid %s at index %d: %v", key, i, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func structToSubject(s *structpb.Struct) (entities.Subject, error) {
	if s == nil {
		return entities.Subject{}, fmt.Errorf("subject is required")
	}
	subject := entities.Subject{
		Kind: entities.SubjectKind(getString(s, "kind")),
		ID:   getString(s, "id"),
	}
	if err := subject.Validate(); err != nil {
		return entities.Subject{}, err
	}
	return subject, nil
}

func capabilitiesFromStruct(s *structpb.Struct) entities.CapabilitySet {
	return entities.CapabilitySet{
		View:   getBool(s, "can_view"),
		Change: getBool(s, "can_change"),
		Delete: getBool(s, "can_delete"),
	}
}

func objectRefToMap(ref entities.ObjectRef) map[string]interface{} {
	return map[string]interface{}{
		"kind": ref.Kind,
		"id":   ref.ID,
	}
}

func objectRefsToList(refs []entities.ObjectRef) []interface{} {
	list := make([]interface{}, 0, len(refs))
	for _, ref := range refs {
		list = append(list, objectRefToMap(ref))
	}
	return list
}

func grantToMap(g *entities.Grant) map[string]interface{} {
	return map[string]interface{}{
		"id": g.ID,
		"subject": map[string]interface{}{
			"kind": string(g.Subject.Kind),
			"id":   g.Subject.ID,
		},
		"target":     objectRefToMap(g.Target),
		"can_view":   g.CanView,
		"can_change": g.CanChange,
		"can_delete": g.CanDelete,
		"created_at": formatTime(g.CreatedAt),
		"updated_at": formatTime(g.UpdatedAt),
	}
}

// formatTime formats as ISO8601, empty for zero times
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func newStruct(fields map[string]interface{}) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return s, nil
}

// toStatus maps domain errors to gRPC status errors
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, services.ErrInvalidGrant):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, repositories.ErrGrantNotFound), errors.Is(err, services.ErrTargetNotFound):
		return status.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.Is(err, services.ErrAnonymousOwner):
		return status.Errorf(codes.Unauthenticated, "%s: %v", op, err)
	case errors.Is(err, resource.ErrPermissionDenied):
		return status.Errorf(codes.PermissionDenied, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	}

	return status.Errorf(codes.Internal, "%s failed: %v", op, err)
}
