package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/rpcmon/internal/core/domain"
)

// GRPCServer exposes provider status through the standard gRPC health
// service. Each provider ID is a service name; the empty service reflects
// the process itself.
type GRPCServer struct {
	health *grpchealth.Server
	server *grpc.Server
	port   int
}

// NewGRPCServer creates the gRPC health server.
func NewGRPCServer(port int) *GRPCServer {
	h := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	return &GRPCServer{health: h, server: srv, port: port}
}

// Register marks known providers before their first check.
func (g *GRPCServer) Register(providers []domain.Provider) {
	for _, p := range providers {
		g.health.SetServingStatus(p.ID, healthpb.HealthCheckResponse_UNKNOWN)
	}
}

// Observe updates the provider's serving status from its latest record.
func (g *GRPCServer) Observe(_ context.Context, p domain.Provider, rec *domain.HealthRecord, _ domain.Transition) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if rec.Online() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(p.ID, status)
}

// Start serves until Stop is called.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}
	slog.Info("gRPC health server listening", "port", g.port)
	return g.server.Serve(lis)
}

// Stop drains in-flight RPCs and stops serving.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}

// Health returns the underlying health service, mainly for tests.
func (g *GRPCServer) Health() healthpb.HealthServer {
	return g.health
}
