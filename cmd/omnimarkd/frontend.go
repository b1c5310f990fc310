package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"go.klb.dev/omnimark/internal/control"
	"go.klb.dev/omnimark/internal/grpcservice"
	"go.klb.dev/omnimark/internal/httpapi"
)

// frontend serves one listener. cmux splits it three ways: gRPC health,
// the HTTP/JSON API and, for anything else, the line protocol.
type frontend struct {
	name string
	ln   net.Listener
	mux  cmux.CMux
	ctrl *control.Server
	grpc *grpc.Server
	http *http.Server
}

func newFrontend(name string, ln net.Listener, ctrl *control.Server, health *grpcservice.Service, token string) (*frontend, error) {
	h, err := httpapi.New(ctrl, health, token).Handler()
	if err != nil {
		return nil, err
	}
	return &frontend{
		name: name,
		ln:   ln,
		mux:  cmux.New(ln),
		ctrl: ctrl,
		grpc: health.NewServer(token),
		http: &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second},
	}, nil
}

func (f *frontend) run(g *errgroup.Group) {
	grpcL := f.mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := f.mux.Match(cmux.HTTP1())
	lineL := f.mux.Match(cmux.Any())

	log := slog.With("listener", f.name, "addr", f.ln.Addr())
	serve := func(proto string, fn func() error) {
		g.Go(func() error {
			err := ignoreClosed(fn())
			if err != nil {
				log.Error("listener stopped", "proto", proto, "err", err)
			}
			return err
		})
	}
	serve("grpc", func() error { return f.grpc.Serve(grpcL) })
	serve("http", func() error { return f.http.Serve(httpL) })
	serve("line", func() error { return f.ctrl.Serve(lineL) })
	serve("mux", f.mux.Serve)
	log.Debug("listener ready")
}

func (f *frontend) shutdown(ctx context.Context) {
	_ = f.ln.Close()
	f.grpc.Stop()
	if err := f.http.Shutdown(ctx); err != nil {
		slog.Warn("http shutdown", "listener", f.name, "err", err)
	}
	f.ctrl.CloseAll()
}

func ignoreClosed(err error) error {
	switch {
	case err == nil,
		errors.Is(err, net.ErrClosed),
		errors.Is(err, cmux.ErrListenerClosed),
		errors.Is(err, cmux.ErrServerClosed),
		errors.Is(err, http.ErrServerClosed),
		errors.Is(err, grpc.ErrServerStopped):
		return nil
	}
	return err
}
