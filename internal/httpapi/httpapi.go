// Package httpapi is the HTTP/JSON surface of the control listener. It
// offers the same operations as the line protocol for clients that would
// rather speak plain HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"go.klb.dev/omnimark/internal/control"
	"go.klb.dev/omnimark/internal/copier"
	"go.klb.dev/omnimark/internal/grpcservice"
	"go.klb.dev/omnimark/internal/notify"
	"go.klb.dev/omnimark/internal/shell"
)

// MaxBodySize bounds request bodies; an encoded image is the largest one.
const MaxBodySize = 64 << 20

// DefaultWait bounds POST /v1/clipboard/copy?wait=true.
const DefaultWait = 30 * time.Second

// waitBuffer holds copy results for other versions while waiting.
const waitBuffer = 64

// Health answers readiness queries.
type Health interface {
	Check(ctx context.Context, service string) (*healthpb.HealthCheckResponse, error)
}

// CopyRequest is the body of POST /v1/clipboard/copy.
type CopyRequest struct {
	Image   string `json:"image"`
	Version uint32 `json:"version"`
}

// CopyAccepted is returned when the request was scheduled but not awaited.
type CopyAccepted struct {
	Version uint32 `json:"version"`
}

// Paths is the body of the pending-files and open-files endpoints.
type Paths struct {
	FilePaths []string `json:"file_paths"`
}

type errorBody struct {
	Error string `json:"error"`
}

// API routes HTTP requests to the control server's collaborators.
type API struct {
	ctrl   *control.Server
	health Health
	token  string
	wait   time.Duration
	mar    gwruntime.Marshaler
}

// New returns an API over ctrl. A non-empty token is required as a bearer
// credential on every route except /healthz.
func New(ctrl *control.Server, health Health, token string) *API {
	return &API{
		ctrl:   ctrl,
		health: health,
		token:  token,
		wait:   DefaultWait,
		mar:    &gwruntime.JSONBuiltin{},
	}
}

// Handler builds the router.
func (a *API) Handler() (http.Handler, error) {
	mux := gwruntime.NewServeMux()
	routes := []struct {
		method, pattern string
		h               gwruntime.HandlerFunc
		open            bool
	}{
		{http.MethodPost, "/v1/clipboard/copy", a.copy, false},
		{http.MethodGet, "/v1/pending-files", a.pendingFiles, false},
		{http.MethodPost, "/v1/open-files", a.openFiles, false},
		{http.MethodPost, "/v1/window/{action}", a.window, false},
		{http.MethodPost, "/v1/menu/{id}", a.menu, false},
		{http.MethodGet, "/healthz", a.healthz, true},
	}
	for _, r := range routes {
		h := r.h
		if !r.open {
			h = a.authorize(h)
		}
		if err := mux.HandlePath(r.method, r.pattern, h); err != nil {
			return nil, fmt.Errorf("route %s %s: %w", r.method, r.pattern, err)
		}
	}
	return mux, nil
}

func (a *API) authorize(next gwruntime.HandlerFunc) gwruntime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		if a.token != "" && !grpcservice.BearerMatches(r.Header.Get("Authorization"), a.token) {
			slog.Warn("http request rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			a.fail(w, http.StatusUnauthorized, errors.New("invalid token"))
			return
		}
		next(w, r, params)
	}
}

func (a *API) copy(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req CopyRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, http.StatusBadRequest, err)
		return
	}

	var sub *notify.Chan
	if r.URL.Query().Get("wait") == "true" {
		// Subscribe before queueing so a fast result is not missed.
		sub = notify.NewChan("http/"+uuid.NewString(), waitBuffer, notify.EventCopyResult)
		a.ctrl.Events.Subscribe(sub)
		defer a.ctrl.Events.Unsubscribe(sub)
	}

	if err := a.ctrl.Copier.Queue(copier.Request{Image: req.Image, Version: req.Version}); err != nil {
		a.fail(w, http.StatusServiceUnavailable, fmt.Errorf("schedule copy: %w", err))
		return
	}
	if sub == nil {
		a.write(w, http.StatusAccepted, CopyAccepted{Version: req.Version})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.wait)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			a.fail(w, http.StatusGatewayTimeout, fmt.Errorf("waiting for copy result: %w", ctx.Err()))
			return
		case ev := <-sub.C():
			res, ok := ev.Payload.(notify.CopyResult)
			if !ok || res.Version != req.Version {
				continue
			}
			a.write(w, http.StatusOK, res)
			return
		}
	}
}

func (a *API) pendingFiles(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	a.write(w, http.StatusOK, Paths{FilePaths: a.ctrl.Pending.Drain()})
}

func (a *API) openFiles(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req Paths
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, http.StatusBadRequest, err)
		return
	}
	a.ctrl.OpenFiles(req.FilePaths)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) window(w http.ResponseWriter, _ *http.Request, params map[string]string) {
	a.shellResult(w, a.ctrl.Shell.Window(params["action"]))
}

func (a *API) menu(w http.ResponseWriter, _ *http.Request, params map[string]string) {
	a.shellResult(w, a.ctrl.Shell.Menu(params["id"]))
}

func (a *API) shellResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, shell.ErrUnknownAction), errors.Is(err, shell.ErrUnknownMenu):
		a.fail(w, http.StatusNotFound, err)
	default:
		a.fail(w, http.StatusInternalServerError, err)
	}
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := a.health.Check(r.Context(), r.URL.Query().Get("service"))
	if err != nil {
		a.fail(w, http.StatusNotFound, err)
		return
	}
	body, err := protojson.Marshal(resp)
	if err != nil {
		a.fail(w, http.StatusInternalServerError, err)
		return
	}
	code := http.StatusOK
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := a.mar.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func (a *API) write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", a.mar.ContentType(v))
	w.WriteHeader(code)
	if err := a.mar.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("http response write failed", "err", err)
	}
}

func (a *API) fail(w http.ResponseWriter, code int, err error) {
	a.write(w, code, errorBody{Error: err.Error()})
}
