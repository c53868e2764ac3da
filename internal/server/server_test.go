// Integration tests for the storagecored admin server.
package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nainya/storagecore/pkg/buffer"
	"github.com/nainya/storagecore/pkg/disk"
)

const bufSize = 1024 * 1024

func setupTestServer(t *testing.T) (*Server, grpc_health_v1.HealthClient, func()) {
	t.Helper()

	dm, err := disk.Open(filepath.Join(t.TempDir(), "admin.db"), nil)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	pool := buffer.NewPool(16, dm, nil)

	srv := NewServer(dm, pool, nil)

	lis := bufconn.Listen(bufSize)
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, srv)
	reflection.Register(grpcServer)

	go grpcServer.Serve(lis)

	bufDialer := func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(bufDialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}

	cleanup := func() {
		conn.Close()
		grpcServer.Stop()
		lis.Close()
		srv.Close()
		dm.Close()
	}

	return srv, grpc_health_v1.NewHealthClient(conn), cleanup
}

func TestHealthCheckServingWhileOpen(t *testing.T) {
	_, client, cleanup := setupTestServer(t)
	defer cleanup()

	resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", resp.Status)
	}
}

func TestHealthCheckNotServingAfterClose(t *testing.T) {
	srv, client, cleanup := setupTestServer(t)
	defer cleanup()

	srv.Close()

	resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, want NOT_SERVING", resp.Status)
	}
}

func TestReflectionRegistered(t *testing.T) {
	_, _, cleanup := setupTestServer(t)
	defer cleanup()

	dm, err := disk.Open(filepath.Join(t.TempDir(), "refl.db"), nil)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	defer dm.Close()
	pool := buffer.NewPool(4, dm, nil)
	srv := NewServer(dm, pool, nil)
	defer srv.Close()

	lis := bufconn.Listen(bufSize)
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, srv)
	reflection.Register(grpcServer)
	go grpcServer.Serve(lis)
	defer grpcServer.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	stream, err := grpc_reflection_v1alpha.NewServerReflectionClient(conn).ServerReflectionInfo(context.Background())
	if err != nil {
		t.Fatalf("ServerReflectionInfo: %v", err)
	}
	req := &grpc_reflection_v1alpha.ServerReflectionRequest{
		MessageRequest: &grpc_reflection_v1alpha.ServerReflectionRequest_ListServices{ListServices: ""},
	}
	if err := stream.Send(req); err != nil {
		t.Fatalf("Send: %v", err)
	}
	resp, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	services := resp.GetListServicesResponse()
	if services == nil || len(services.Service) == 0 {
		t.Fatal("expected at least one service listed via reflection")
	}
}
