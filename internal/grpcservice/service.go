// Package grpcservice serves the daemon's readiness over the standard gRPC
// health protocol. Requests carry the shared token as a bearer credential.
package grpcservice

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service key for the clipboard copier. The empty
// name reports the daemon as a whole.
const ServiceName = "omnimark.Clipboard"

// SourceHeader names the calling host or tool.
const SourceHeader = "x-omnimark-source"

// Service owns the health state shared by every listener.
type Service struct {
	health *health.Server
}

// New returns a Service reporting NOT_SERVING until SetServing(true).
func New() *Service {
	s := &Service{health: health.NewServer()}
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the clipboard service status.
func (s *Service) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Shutdown marks everything NOT_SERVING and ends Watch streams.
func (s *Service) Shutdown() { s.health.Shutdown() }

// Check answers a health query without going through gRPC.
func (s *Service) Check(ctx context.Context, service string) (*healthpb.HealthCheckResponse, error) {
	return s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
}

// NewServer returns a gRPC server with the health service registered. A
// non-empty token is required on every call.
func (s *Service) NewServer(token string) *grpc.Server {
	a := authorizer{token: token}
	gs := grpc.NewServer(
		grpc.UnaryInterceptor(a.unary),
		grpc.StreamInterceptor(a.stream),
	)
	healthpb.RegisterHealthServer(gs, s.health)
	return gs
}

type authorizer struct {
	token string // empty = no auth
}

func (a authorizer) unary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if err := a.auth(ctx); err != nil {
		slog.Warn("grpc call rejected", "method", info.FullMethod, "peer", addrFromCtx(ctx), "source", sourceFromCtx(ctx))
		return nil, err
	}
	return handler(ctx, req)
}

func (a authorizer) stream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if err := a.auth(ss.Context()); err != nil {
		slog.Warn("grpc stream rejected", "method", info.FullMethod, "peer", addrFromCtx(ss.Context()))
		return err
	}
	return handler(srv, ss)
}

// auth validates the bearer token in ctx metadata. Skipped when a.token is empty.
func (a authorizer) auth(ctx context.Context) error {
	if a.token == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}
	if !BearerMatches(vals[0], a.token) {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

// BearerMatches reports whether an Authorization header value carries token.
// The "Bearer " prefix is optional.
func BearerMatches(header, token string) bool {
	got := strings.TrimPrefix(header, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func sourceFromCtx(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(SourceHeader); len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok {
		return p.Addr.String()
	}
	return "unknown"
}

// BearerCredentials attaches the token and source to outgoing calls.
type BearerCredentials struct {
	Token  string
	Source string
}

func (c BearerCredentials) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	md := make(map[string]string, 2)
	if c.Token != "" {
		md["authorization"] = "Bearer " + c.Token
	}
	if c.Source != "" {
		md[SourceHeader] = c.Source
	}
	return md, nil
}

func (c BearerCredentials) RequireTransportSecurity() bool { return false }
