package handlers

import (
	"context"
	"net"
	"testing"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/internal/infrastructure/cache"
	"github.com/asakaida/sharing/internal/repositories/memory"
	"github.com/asakaida/sharing/internal/services"
	"github.com/asakaida/sharing/internal/services/authorization"
	"github.com/asakaida/sharing/internal/services/registry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const bufSize = 1024 * 1024

// testServer is a SharingService served over an in-memory listener
type testServer struct {
	client     *SharingServiceClient
	store      *memory.ShareRepository
	identities *memory.IdentityRepository
	registry   *registry.Registry
	shares     *services.ShareService
}

// setupTestServer starts the handler backed by memory stores
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewShareRepository()
	identities := memory.NewIdentityRepository()
	objects := registry.New()
	revisions := cache.NewLocalRevision()

	shares := services.NewShareService(store, objects, revisions)
	authority := authorization.NewAuthority(store)
	handler := NewSharingHandler(authority, shares, identities)

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	RegisterSharingServiceServer(server, handler)
	go func() {
		_ = server.Serve(listener)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		server.Stop()
	})

	return &testServer{
		client:     NewSharingServiceClient(conn),
		store:      store,
		identities: identities,
		registry:   objects,
		shares:     shares,
	}
}

// call invokes method as userID ("" = anonymous)
func (s *testServer) call(t *testing.T, userID string, method string, fields map[string]interface{}) (*structpb.Struct, error) {
	t.Helper()

	req, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}

	ctx := context.Background()
	if userID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, UserIDMetadataKey, userID)
	}
	return s.client.Call(ctx, method, req)
}

// grant creates a grant directly in the store, bypassing the RPC checks
func (s *testServer) grant(t *testing.T, subject entities.Subject, target entities.ObjectRef, caps entities.CapabilitySet) *entities.Grant {
	t.Helper()
	g, err := s.shares.CreateGrant(context.Background(), subject, target, caps)
	if err != nil {
		t.Fatalf("failed to create grant: %v", err)
	}
	return g
}

func ref(kind, id string) map[string]interface{} {
	return map[string]interface{}{"kind": kind, "id": id}
}
