package handlers

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "sharing.v1.SharingService"

// SharingServiceServer is the server API for SharingService.
// Requests and responses are google.protobuf.Struct messages.
type SharingServiceServer interface {
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckMultiple(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Filter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateGrant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListGrants(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateGrant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteGrant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnsureOwnerGrant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RevokeTarget(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PruneOrphans(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv SharingServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

var methods = map[string]unaryMethod{
	"Check":            SharingServiceServer.Check,
	"CheckMultiple":    SharingServiceServer.CheckMultiple,
	"Filter":           SharingServiceServer.Filter,
	"CreateGrant":      SharingServiceServer.CreateGrant,
	"ListGrants":       SharingServiceServer.ListGrants,
	"UpdateGrant":      SharingServiceServer.UpdateGrant,
	"DeleteGrant":      SharingServiceServer.DeleteGrant,
	"EnsureOwnerGrant": SharingServiceServer.EnsureOwnerGrant,
	"RevokeTarget":     SharingServiceServer.RevokeTarget,
	"PruneOrphans":     SharingServiceServer.PruneOrphans,
}

// methodNames keeps the descriptor order stable
var methodNames = []string{
	"Check",
	"CheckMultiple",
	"Filter",
	"CreateGrant",
	"ListGrants",
	"UpdateGrant",
	"DeleteGrant",
	"EnsureOwnerGrant",
	"RevokeTarget",
	"PruneOrphans",
}

// SharingServiceDesc is the grpc.ServiceDesc for SharingService
var SharingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SharingServiceServer)(nil),
	Methods:     methodDescs(),
	Streams:     []grpc.StreamDesc{},
	Metadata:    "sharing/v1/sharing.proto",
}

// RegisterSharingServiceServer registers srv with the gRPC server
func RegisterSharingServiceServer(s grpc.ServiceRegistrar, srv SharingServiceServer) {
	s.RegisterService(&SharingServiceDesc, srv)
}

// FullMethod returns the full RPC path of a method
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func methodDescs() []grpc.MethodDesc {
	descs := make([]grpc.MethodDesc, 0, len(methodNames))
	for _, name := range methodNames {
		descs = append(descs, grpc.MethodDesc{
			MethodName: name,
			Handler:    unaryHandler(name, methods[name]),
		})
	}
	return descs
}

func unaryHandler(name string, call unaryMethod) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := FullMethod(name)
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SharingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SharingServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SharingServiceClient calls SharingService methods over a client connection
type SharingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSharingServiceClient creates a new client
func NewSharingServiceClient(cc grpc.ClientConnInterface) *SharingServiceClient {
	return &SharingServiceClient{cc: cc}
}

// Call invokes method with req
func (c *SharingServiceClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
