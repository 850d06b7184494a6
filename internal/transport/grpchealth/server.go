// Package grpchealth exposes the standard gRPC Health Checking
// Protocol (google.golang.org/grpc/health, grpc_health_v1) for busd,
// adapting the teacher's client-side GRPCProber
// (infrastructure/observability/healthcheck/grpc.go) to the serving
// side: busd is itself the thing being probed, not the prober.
package grpchealth

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hongxinliu/shame-go/internal/logging"
)

// Server wraps grpc-go's bundled health service. The empty-string
// service name reports overall process health, matching
// grpc_health_v1's convention for "the server as a whole."
type Server struct {
	grpcServer *grpc.Server
	healthSrv  *health.Server
	log        logging.Logger
}

// New constructs a Server in the NOT_SERVING state. Call SetServing
// once the bus is actually up.
func New(log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSrv)

	return &Server{
		grpcServer: grpcServer,
		healthSrv:  healthSrv,
		log:        log.With("component", "grpchealth"),
	}
}

// SetServing updates service's reported status. An empty service name
// updates the overall-server status.
func (s *Server) SetServing(service string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.healthSrv.SetServingStatus(service, status)
}

// Serve listens on addr and blocks serving gRPC health checks until
// Stop is called or the listener errors.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpchealth: listen %s: %w", addr, err)
	}
	s.log.Info("grpc health service listening", "addr", addr)
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.healthSrv.Shutdown()
	s.grpcServer.GracefulStop()
}
