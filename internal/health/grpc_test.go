package health

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"yuzu/rendezvous/internal/logging"
)

type flakyStore struct {
	mu  sync.Mutex
	err error
}

func (f *flakyStore) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *flakyStore) Count(context.Context) (int, error) { return 0, nil }

func (f *flakyStore) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func startGRPC(t *testing.T, st Store) (*GRPC, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	g := NewGRPC(st, time.Second, logging.Discard().NewLogger("grpc"))
	go func() { _ = g.Serve(lis) }()
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return g, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) *healthpb.HealthCheckResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return resp
}

func TestGRPCTracksStorePing(t *testing.T) {
	st := &flakyStore{}
	g, client := startGRPC(t, st)

	serving := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}
	notServing := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}

	if got := check(t, client, ServiceName); !proto.Equal(got, notServing) {
		t.Fatalf("before first refresh: %v", got)
	}

	g.Refresh(context.Background())
	for _, svc := range []string{"", ServiceName} {
		if got := check(t, client, svc); !proto.Equal(got, serving) {
			t.Fatalf("%q: expected SERVING, got %v", svc, got)
		}
	}

	st.setErr(errors.New("redis down"))
	if s := g.Refresh(context.Background()); s != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("refresh returned %v", s)
	}
	if got := check(t, client, ServiceName); !proto.Equal(got, notServing) {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
}

func TestGRPCUnknownService(t *testing.T) {
	_, client := startGRPC(t, &flakyStore{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
