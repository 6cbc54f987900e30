package grpcx

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/aussiebroadwan/selfie/pkg/idx"
	"github.com/aussiebroadwan/selfie/pkg/slogx"
)

const requestIDKey = "x-request-id"

// UnaryLogging is the gRPC counterpart of slogx.HTTPMiddleware. It should be
// the first interceptor so later ones log through the request logger.
func UnaryLogging(base *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		logger := base.With("req_id", requestID(ctx), "method", info.FullMethod)
		ctx = slogx.WithContext(ctx, logger)

		resp, err := handler(ctx, req)

		logger.Info("grpc_request",
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

func StreamLogging(base *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger := base.With("req_id", requestID(ss.Context()), "method", info.FullMethod)
		ctx := slogx.WithContext(ss.Context(), logger)

		err := handler(srv, &contextStream{ServerStream: ss, ctx: ctx})

		logger.Info("grpc_stream",
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDKey); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return idx.New().String()
}
