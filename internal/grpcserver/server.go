// Package grpcserver exposes the standard gRPC health service for the
// discovery service.
//
// Two services are reported:
//
//	""                → SERVING while the process is up
//	"discovery.sync"  → NOT_SERVING until the startup sync has finished
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SyncService is the health service name tracking the startup sync.
const SyncService = "discovery.sync"

// Server wraps a grpc.Server carrying only the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewServer constructs a Server. Overall health starts SERVING and the sync
// service NOT_SERVING.
func NewServer(opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(SyncService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// MarkSyncReady flips the sync service to SERVING.
func (s *Server) MarkSyncReady() {
	s.health.SetServingStatus(SyncService, healthpb.HealthCheckResponse_SERVING)
}

// Serve listens on addr until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	log.Printf("[grpc] Health service listening on %s", lis.Addr())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}
