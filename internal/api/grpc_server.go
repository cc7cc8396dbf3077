package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// NewGRPCServer builds a gRPC server exposing the catalog service, the gRPC
// health checking protocol and server reflection.
func NewGRPCServer(handler CatalogServiceServer, logger log.FieldLogger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingUnaryInterceptor(logger)))

	RegisterCatalogServiceServer(s, handler)
	logger.Info("CatalogService gRPC service registered")

	healthServer := health.NewServer()
	healthServer.SetServingStatus(CatalogServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s, healthServer)

	// Useful for tools like grpcurl.
	reflection.Register(s)
	return s, healthServer
}

func loggingUnaryInterceptor(logger log.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.WithFields(log.Fields{
			"method":  info.FullMethod,
			"code":    status.Code(err).String(),
			"elapsed": time.Since(start).String(),
		}).Info("gRPC request served")
		return resp, err
	}
}
