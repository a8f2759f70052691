package server

import (
	"context"
	"log/slog"

	"presence-relay/contract"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RelayService is the service name probes can ask for. The empty name reports the whole process.
const RelayService = "presence.relay"

var _ contract.Worker = (*HealthServer)(nil)

// HealthServer answers grpc.health.v1.Health for the relay.
// It reports SERVING while Run is active.
type HealthServer struct {
	log    *slog.Logger
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(RelayService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{log: log, health: h}
}

func (s *HealthServer) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.health)
}

func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(RelayService, status)
}

func (s *HealthServer) Run(ctx context.Context) error {
	s.SetServing(true)
	s.log.Debug("Health reporting serving")
	<-ctx.Done()
	s.SetServing(false)
	s.log.Debug("Health reporting not serving")
	return nil
}
