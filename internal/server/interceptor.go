package server

import (
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/metrics"
)

// RequestIDHeader is read from incoming metadata and echoed back.
const RequestIDHeader = "x-request-id"

// UnaryInterceptor attaches a request id and scoped logger to the context,
// maps domain errors to status codes and records the call.
func UnaryInterceptor(m *metrics.Metrics, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		reqID := incomingRequestID(ctx)
		log := logger.With("request_id", reqID, "method", info.FullMethod)
		ctx = common.WithLogger(common.WithRequestID(ctx, reqID), log)

		resp, err := handler(ctx, req)
		err = common.ToStatus(err)
		code := status.Code(err)
		m.RPC(path.Base(info.FullMethod), code.String())

		if herr := grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, reqID)); herr != nil {
			log.Debug("rpc.header.failed", "error", herr)
		}
		if err != nil {
			log.Warn("rpc.failed", "code", code.String(), "elapsed", time.Since(start), "error", err)
			return nil, err
		}
		log.Info("rpc.ok", "elapsed", time.Since(start))
		return resp, nil
	}
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(RequestIDHeader); len(vals) > 0 && vals[0] != "" {
			return vals[0]
		}
	}
	return uuid.NewString()
}
