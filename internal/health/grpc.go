package health

import (
	"context"
	"net"
	"time"

	"github.com/pion/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") service.
const ServiceName = "rendezvous.Signaling"

// GRPC serves grpc.health.v1.Health, tracking Store.Ping.
type GRPC struct {
	srv      *grpc.Server
	health   *health.Server
	store    Store
	interval time.Duration
	log      logging.LeveledLogger
}

func NewGRPC(st Store, interval time.Duration, log logging.LeveledLogger) *GRPC {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	g := &GRPC{
		srv:      grpc.NewServer(),
		health:   health.NewServer(),
		store:    st,
		interval: interval,
		log:      log,
	}
	healthpb.RegisterHealthServer(g.srv, g.health)
	g.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return g
}

func (g *GRPC) set(s healthpb.HealthCheckResponse_ServingStatus) {
	g.health.SetServingStatus("", s)
	g.health.SetServingStatus(ServiceName, s)
}

// Refresh pings the store once and publishes the result.
func (g *GRPC) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, g.interval)
	defer cancel()
	s := healthpb.HealthCheckResponse_SERVING
	if err := g.store.Ping(ctx); err != nil {
		g.log.Warnf("store ping: %v", err)
		s = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.set(s)
	return s
}

// Watch refreshes on every interval until ctx is cancelled.
func (g *GRPC) Watch(ctx context.Context) {
	g.Refresh(ctx)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Refresh(ctx)
		}
	}
}

func (g *GRPC) Serve(lis net.Listener) error { return g.srv.Serve(lis) }

// Stop reports NOT_SERVING to watchers and drains the server.
func (g *GRPC) Stop() {
	g.health.Shutdown()
	g.srv.GracefulStop()
}
