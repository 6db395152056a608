package api

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported alongside the overall status
const HealthService = "casino.RoundEngine"

// HealthServer exposes grpc.health.v1 for orchestrators
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthServer creates a health server reporting NOT_SERVING
func NewHealthServer() *HealthServer {
	s := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	s.SetServing(false)
	return s
}

// SetServing flips the reported status
func (s *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(HealthService, status)
}

// Serve blocks serving on listener
func (s *HealthServer) Serve(listener net.Listener) error {
	log.WithField("addr", listener.Addr().String()).Info("gRPC health server listening")
	if err := s.server.Serve(listener); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("gRPC health server failed: %w", err)
	}
	return nil
}

// Stop marks the service down and stops accepting calls
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
