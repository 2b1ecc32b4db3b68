package api

import (
	"fmt"
	"net"

	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the operator.
// The empty service name tracks the same status.
const ServiceName = "tempo.operator.Reconciler"

// GRPCServer serves the standard gRPC health protocol so orchestrators and
// peer units can probe the operator without HTTP
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
}

// NewGRPCServer creates a gRPC server with the health service registered.
// Both service names start as NOT_SERVING until the first pass reports.
func NewGRPCServer() *GRPCServer {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(MetricsInterceptor()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &GRPCServer{server: srv, health: hs}
}

// Update maps a pass report to the health serving status. A unit is serving
// once it completed a pass that did not end blocked.
func (s *GRPCServer) Update(report types.StatusReport) {
	st := healthpb.HealthCheckResponse_SERVING
	if report.Passes == 0 || report.Status.Level == types.StatusBlocked {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Start listens on addr and serves until Stop is called
func (s *GRPCServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener
func (s *GRPCServer) Serve(lis net.Listener) error {
	logger := log.WithComponent("grpc")
	logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health service listening")
	return s.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
