package grpcservice

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func dial(t *testing.T, svc *Service, serverToken string, creds BearerCredentials) healthpb.HealthClient {
	t.Helper()
	ln := bufconn.Listen(1 << 16)
	gs := svc.NewServer(serverToken)
	go func() { _ = gs.Serve(ln) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return ln.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(creds),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestServingStatus(t *testing.T) {
	svc := New()
	resp, err := svc.Check(context.Background(), ServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	svc.SetServing(true)
	resp, err = svc.Check(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestTokenRequired(t *testing.T) {
	svc := New()
	svc.SetServing(true)

	ok := dial(t, svc, "s3cret", BearerCredentials{Token: "s3cret", Source: "test"})
	resp, err := ok.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	bad := dial(t, svc, "s3cret", BearerCredentials{Token: "nope"})
	_, err = bad.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestBearerMatches(t *testing.T) {
	assert.True(t, BearerMatches("Bearer abc", "abc"))
	assert.True(t, BearerMatches("abc", "abc"))
	assert.False(t, BearerMatches("Bearer abd", "abc"))
	assert.False(t, BearerMatches("", "abc"))
}
