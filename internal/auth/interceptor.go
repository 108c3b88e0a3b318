// ABOUTME: gRPC interceptors applying the request gate and path authorization
// ABOUTME: Bearer tokens are read from the authorization metadata key

package auth

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, ctx context.Context, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	baseAttrs := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		baseAttrs = append(baseAttrs, "peer_addr", p.Addr.String())
	}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("auth failure", baseAttrs...)
}

func authorizationFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// gateContext establishes the principal for a gRPC call, never failing.
func (g *Gate) gateContext(ctx context.Context, fullMethod string) context.Context {
	if g.public.Match(fullMethod) || FromContext(ctx) != nil {
		return ctx
	}
	p, reason, attrs := g.resolve(ctx, authorizationFromMetadata(ctx))
	if p == nil {
		if reason != "" {
			logAuthFailure(g.logger, ctx, reason, append(attrs, "method", fullMethod)...)
		}
		return ctx
	}
	return WithPrincipal(ctx, p)
}

// UnaryInterceptor returns the gate as a gRPC unary interceptor.
func (g *Gate) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(g.gateContext(ctx, info.FullMethod), req)
	}
}

// StreamInterceptor returns the gate as a gRPC stream interceptor.
func (g *Gate) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		wrapped := &wrappedServerStream{
			ServerStream: ss,
			ctx:          g.gateContext(ss.Context(), info.FullMethod),
		}
		return handler(srv, wrapped)
	}
}

// checkMethod applies authorization to a gRPC method.
func (a *Authorizer) checkMethod(ctx context.Context, fullMethod string) error {
	if a.IsPublic(fullMethod) {
		return nil
	}
	sc := FromContext(ctx)
	if sc == nil {
		logAuthFailure(a.logger, ctx, "not_authenticated", "method", fullMethod)
		return status.Error(codes.Unauthenticated, "authentication required")
	}
	if !a.Authorize(sc.Role(), fullMethod, "grpc") {
		logAuthFailure(a.logger, ctx, "forbidden", "method", fullMethod, "principal_id", sc.Principal.ID)
		return status.Error(codes.PermissionDenied, "access denied")
	}
	return nil
}

// UnaryInterceptor returns authorization as a gRPC unary interceptor.
// Must be chained after Gate.UnaryInterceptor.
func (a *Authorizer) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := a.checkMethod(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor returns authorization as a gRPC stream interceptor.
func (a *Authorizer) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := a.checkMethod(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// wrappedServerStream wraps a grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
