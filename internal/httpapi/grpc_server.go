package httpapi

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"pongarena.org/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCHealth serves the standard grpc.health.v1 protocol backed by the same
// readiness probe as /readyz, so orchestrators can probe either port.
type GRPCHealth struct {
	grpc_health_v1.UnimplementedHealthServer

	readiness readinessChecker
}

// NewGRPCHealth creates the gRPC health service wrapper.
func NewGRPCHealth(r readinessChecker) *GRPCHealth {
	return &GRPCHealth{readiness: r}
}

// Check evaluates readiness and maps it onto the health protocol.
func (s *GRPCHealth) Check(ctx context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		return &grpc_health_v1.HealthCheckResponse{
			Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING,
		}, nil
	}
	obs.SetReady(true)
	return &grpc_health_v1.HealthCheckResponse{
		Status: grpc_health_v1.HealthCheckResponse_SERVING,
	}, nil
}

// Watch is not supported; clients should poll Check.
func (s *GRPCHealth) Watch(_ *grpc_health_v1.HealthCheckRequest, _ grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "watch is not supported")
}
