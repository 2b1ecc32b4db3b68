package api

import (
	"context"

	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// MetricsInterceptor creates a gRPC unary interceptor that records request
// counts and latency by full method name and status code
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	logger := log.WithComponent("grpc")
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		timer := metrics.NewTimer()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		metrics.APIRequestsTotal.WithLabelValues(info.FullMethod, code.String()).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, info.FullMethod)

		if err != nil {
			logger.Debug().
				Str("method", info.FullMethod).
				Str("code", code.String()).
				Err(err).
				Msg("gRPC request failed")
		}
		return resp, err
	}
}
