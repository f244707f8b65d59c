package handler

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/auth"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/logger"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/middleware"
)

// publicGRPCPrefixes are reachable without a bearer token.
var publicGRPCPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

// GRPCServer is the service's gRPC endpoint: the standard health service
// and server reflection, behind logging and authentication interceptors.
type GRPCServer struct {
	*grpc.Server
	health *health.Server
	log    *logger.Logger
}

// NewGRPCServer creates a gRPC server. The service reports NOT_SERVING
// until SetServing(true) is called.
func NewGRPCServer(serviceName string, verifier middleware.TokenVerifier, log *logger.Logger, opts ...grpc.ServerOption) *GRPCServer {
	if log == nil {
		log = logger.Nop()
	}
	s := &GRPCServer{health: health.NewServer(), log: log.Component("grpc")}

	opts = append(opts, grpc.ChainUnaryInterceptor(
		s.recoverUnary,
		s.logUnary,
		authUnary(verifier),
	))
	s.Server = grpc.NewServer(opts...)

	healthpb.RegisterHealthServer(s.Server, s.health)
	reflection.Register(s.Server)

	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetServing flips the health status of every registered service name.
func (s *GRPCServer) SetServing(serving bool) {
	if serving {
		s.health.Resume()
		return
	}
	s.health.Shutdown()
}

func (s *GRPCServer) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	err = toStatus(err)
	code := status.Code(err)

	event := s.log.Debug()
	if code != codes.OK {
		event = s.log.Warn().Err(err)
	}
	event.Str("method", info.FullMethod).
		Str("code", code.String()).
		Dur("duration", time.Since(start)).
		Msg("gRPC request")
	return resp, err
}

func (s *GRPCServer) recoverUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error().Interface("panic", p).Str("method", info.FullMethod).Msg("gRPC handler panic recovered")
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return next(ctx, req)
}

// authUnary verifies the bearer token in the authorization metadata and
// stores the caller in the context.
func authUnary(verifier middleware.TokenVerifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		for _, p := range publicGRPCPrefixes {
			if strings.HasPrefix(info.FullMethod, p) {
				return next(ctx, req)
			}
		}
		if verifier == nil {
			return nil, status.Error(codes.Unauthenticated, "authentication is not configured")
		}

		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}
		raw, err := auth.BearerToken(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		uc, err := verifier.Verify(raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return next(auth.WithUserContext(ctx, uc), req)
	}
}

// toStatus converts coded service errors to gRPC statuses and passes
// existing statuses through.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var appErr *errors.Error
	if errors.As(err, &appErr) && appErr.Code != errors.ErrCodeInternal {
		return status.Error(errors.GRPCCode(err), appErr.Message)
	}
	return status.Error(codes.Internal, "internal error")
}
