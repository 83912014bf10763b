package app

import (
	"kitchenhero/cmd/internal/auth/grpcauth"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// newGRPCServer builds the gRPC server resource services register on.
// Every method except the health service requires a bearer access token.
func newGRPCServer(v grpcauth.Validator) (*grpc.Server, *health.Server) {
	skip := grpcauth.WithSkipMethods(
		healthpb.Health_Check_FullMethodName,
		healthpb.Health_Watch_FullMethodName,
	)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcauth.UnaryServerInterceptor(v, skip)),
		grpc.ChainStreamInterceptor(grpcauth.StreamServerInterceptor(v, skip)),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return srv, hs
}
