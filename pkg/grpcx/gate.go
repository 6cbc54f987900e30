// Package grpcx carries the bearer-token gate and request logging to gRPC
// servers.
package grpcx

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/aussiebroadwan/selfie/pkg/httpx"
	"github.com/aussiebroadwan/selfie/pkg/jwtx"
	"github.com/aussiebroadwan/selfie/pkg/slogx"
)

// HealthMethods are the grpc.health.v1 methods, which never need a token.
var HealthMethods = []string{
	"/grpc.health.v1.Health/Check",
	"/grpc.health.v1.Health/Watch",
	"/grpc.health.v1.Health/List",
}

// Gate authenticates calls with an access token read from the
// "authorization" metadata. Methods listed as public bypass it.
type Gate struct {
	verifier jwtx.Verifier
	public   map[string]struct{}
}

// NewGate returns a gate that accepts tokens verified by v. public holds full
// method names ("/pkg.Service/Method").
func NewGate(v jwtx.Verifier, public ...string) *Gate {
	g := &Gate{verifier: v, public: make(map[string]struct{}, len(public))}
	for _, m := range public {
		g.public[m] = struct{}{}
	}
	return g
}

func (g *Gate) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := g.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (g *Gate) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := g.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
	}
}

// authenticate attaches the verified claims with httpx.ContextWithClaims so
// handlers read the caller the same way on both transports.
func (g *Gate) authenticate(ctx context.Context, method string) (context.Context, error) {
	if _, ok := g.public[method]; ok {
		return ctx, nil
	}

	raw, ok := bearerFromMetadata(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}

	claims, err := g.verifier.Verify(raw, jwtx.KindAccess)
	if err != nil {
		slogx.FromContext(ctx).Warn("jwt verify failed", "method", method, "err", err)
		return nil, status.Error(codes.Unauthenticated, "token verification failed")
	}
	return httpx.ContextWithClaims(ctx, claims), nil
}

func bearerFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get("authorization") {
		scheme, raw, ok := strings.Cut(v, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(raw) != "" {
			return strings.TrimSpace(raw), true
		}
	}
	return "", false
}

type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context { return s.ctx }
