// ABOUTME: gRPC server construction with the auth gate and authorizer interceptors
// ABOUTME: Registers the standard health service, which stays reachable without a token

package gateway

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/2389/inkwell/internal/auth"
)

// newGRPCServer creates a gRPC server whose calls pass through gate then authz.
func newGRPCServer(gate *auth.Gate, authz *auth.Authorizer, healthSrv *health.Server) *grpc.Server {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(gate.UnaryInterceptor(), authz.UnaryInterceptor()),
		grpc.ChainStreamInterceptor(gate.StreamInterceptor(), authz.StreamInterceptor()),
		grpc.UnknownServiceHandler(unknownMethod),
	)
	healthpb.RegisterHealthServer(server, healthSrv)
	return server
}

// unknownMethod answers unregistered methods. It runs behind the stream
// interceptors, so callers learn nothing before authenticating.
func unknownMethod(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	return status.Errorf(codes.Unimplemented, "unknown method %s", method)
}
