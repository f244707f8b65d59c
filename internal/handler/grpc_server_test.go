package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/auth"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/logger"
)

func dialBuffered(t *testing.T, srv *GRPCServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHealthReflectsServingState(t *testing.T) {
	srv := NewGRPCServer("hr-timesheets", auth.NewVerifier("secret", ""), logger.Nop())
	client := healthpb.NewHealthClient(dialBuffered(t, srv))
	ctx := context.Background()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "hr-timesheets"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	srv.SetServing(true)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "hr-timesheets"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	srv.SetServing(false)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestAuthUnary(t *testing.T) {
	verifier := auth.NewVerifier("secret", "")
	interceptor := authUnary(verifier)
	info := &grpc.UnaryServerInfo{FullMethod: "/hr.timesheets.v1.Timesheets/Get"}

	var seen string
	next := func(ctx context.Context, _ interface{}) (interface{}, error) {
		uc, err := auth.GetUserContext(ctx)
		if err == nil {
			seen = uc.UserID
		}
		return "ok", nil
	}

	_, err := interceptor(context.Background(), nil, info, next)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	token, err := verifier.Sign("user-1", "u@example.com", time.Hour)
	require.NoError(t, err)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
	resp, err := interceptor(ctx, nil, info, next)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, "user-1", seen)

	public := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, err = interceptor(context.Background(), nil, public, next)
	assert.NoError(t, err)
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
		msg  string
	}{
		{errors.Unauthorized("You are not the next approver in line"), codes.PermissionDenied, "You are not the next approver in line"},
		{errors.InvalidTransition("timesheet is not in submitted status"), codes.FailedPrecondition, "timesheet is not in submitted status"},
		{errors.DuplicateSignature("You have already signed this timesheet"), codes.AlreadyExists, "You have already signed this timesheet"},
		{errors.New(errors.ErrCodeInternal, "pool exhausted"), codes.Internal, "internal error"},
		{context.DeadlineExceeded, codes.Internal, "internal error"},
		{status.Error(codes.NotFound, "gone"), codes.NotFound, "gone"},
	}
	for _, tt := range cases {
		st, ok := status.FromError(toStatus(tt.err))
		require.True(t, ok)
		assert.Equal(t, tt.code, st.Code())
		assert.Equal(t, tt.msg, st.Message())
	}
	assert.NoError(t, toStatus(nil))
}
