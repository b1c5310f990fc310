package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/soheilhy/cmux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"go.klb.dev/omnimark/internal/control"
	"go.klb.dev/omnimark/internal/copier"
	"go.klb.dev/omnimark/internal/grpcservice"
	"go.klb.dev/omnimark/internal/ipc"
	"go.klb.dev/omnimark/internal/notify"
	"go.klb.dev/omnimark/internal/pending"
	"go.klb.dev/omnimark/internal/shell"
)

type nopCopier struct{}

func (nopCopier) Queue(copier.Request) error { return nil }

// One socket, three protocols.
func TestFrontendMultiplexesProtocols(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "omnimark.sock")
	ln, err := ipc.Listen(socket)
	require.NoError(t, err)

	hub := notify.New()
	store := pending.NewStore([]string{"/tmp/doc.md", "/tmp/b.md"})
	ctrl := &control.Server{Copier: nopCopier{}, Pending: store, Events: hub, Shell: shell.New(hub, nil)}
	health := grpcservice.New()
	health.SetServing(true)

	fe, err := newFrontend("ipc", ln, ctrl, health, "")
	require.NoError(t, err)
	var g errgroup.Group
	fe.run(&g)
	defer func() {
		fe.shutdown(context.Background())
		assert.NoError(t, g.Wait())
	}()

	// Line protocol.
	conn, err := ipc.Dial(socket)
	require.NoError(t, err)
	c, err := control.NewClient(conn, "", "test")
	require.NoError(t, err)
	paths, err := c.PendingFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/doc.md", "/tmp/b.md"}, paths)
	_ = c.Close()

	// HTTP.
	hc := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		},
	}}
	resp, err := hc.Get("http://omnimark/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "SERVING", body["status"])

	// gRPC.
	gc, err := grpc.NewClient("unix://"+socket, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer gc.Close()
	hr, err := healthpb.NewHealthClient(gc).Check(context.Background(), &healthpb.HealthCheckRequest{Service: grpcservice.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hr.GetStatus())
}

func TestRelayHandsFilesToRunningInstance(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "omnimark.sock")
	ln, err := ipc.Listen(socket)
	require.NoError(t, err)

	hub := notify.New()
	store := pending.NewStore(nil)
	ctrl := &control.Server{Copier: nopCopier{}, Pending: store, Events: hub, Shell: shell.New(hub, nil)}
	go func() { _ = ctrl.Serve(ln) }()
	defer ln.Close()

	require.True(t, ipc.IsRunning(socket))
	require.NoError(t, relay(socket, []string{"/tmp/doc.md"}))
	assert.Equal(t, []string{"/tmp/doc.md"}, store.Drain())
}

func TestIgnoreClosed(t *testing.T) {
	assert.NoError(t, ignoreClosed(nil))
	assert.NoError(t, ignoreClosed(net.ErrClosed))
	assert.NoError(t, ignoreClosed(http.ErrServerClosed))
	assert.NoError(t, ignoreClosed(cmux.ErrServerClosed))
	assert.NoError(t, ignoreClosed(cmux.ErrListenerClosed))
	assert.Error(t, ignoreClosed(assert.AnError))
}

func TestIsContainerID(t *testing.T) {
	assert.True(t, isContainerID("0123456789abcdef"))
	assert.False(t, isContainerID("laptop"))
	assert.False(t, isContainerID("0123456789ABCDEF"))
}
