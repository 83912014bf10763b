// Package grpcauth authenticates gRPC calls with session access tokens.
//
// Clients send "authorization: Bearer <token>" metadata. Validation is
// local (signature and claims); the store is never consulted.
package grpcauth

import (
	"context"
	"strings"
	"time"

	"kitchenhero/cmd/internal/auth/session"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HeaderName is the metadata key carrying the bearer token.
const HeaderName = "authorization"

// Validator checks access tokens. *session.Service satisfies it.
type Validator interface {
	ValidateAccessToken(token string, now time.Time) (session.AccessClaims, bool)
}

type ctxKey struct{}

// ClaimsFromContext returns the claims attached by the interceptors.
func ClaimsFromContext(ctx context.Context) (session.AccessClaims, bool) {
	c, ok := ctx.Value(ctxKey{}).(session.AccessClaims)
	return c, ok
}

// ContextWithClaims attaches claims to ctx.
func ContextWithClaims(ctx context.Context, c session.AccessClaims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

type options struct {
	now  func() time.Time
	skip map[string]struct{}
}

// Option configures the interceptors.
type Option func(*options)

// WithSkipMethods leaves the given full method names unauthenticated
// (e.g. "/grpc.health.v1.Health/Check").
func WithSkipMethods(methods ...string) Option {
	return func(o *options) {
		for _, m := range methods {
			o.skip[m] = struct{}{}
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{now: time.Now, skip: map[string]struct{}{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) authenticate(ctx context.Context, v Validator, method string) (context.Context, error) {
	if _, ok := o.skip[method]; ok {
		return ctx, nil
	}

	raw, ok := bearer(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	claims, ok := v.ValidateAccessToken(raw, o.now())
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return ContextWithClaims(ctx, claims), nil
}

func bearer(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(HeaderName)
	if len(values) == 0 {
		return "", false
	}
	scheme, tok, ok := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// UnaryServerInterceptor rejects calls without a valid access token.
func UnaryServerInterceptor(v Validator, opts ...Option) grpc.UnaryServerInterceptor {
	o := newOptions(opts)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := o.authenticate(ctx, v, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of UnaryServerInterceptor.
func StreamServerInterceptor(v Validator, opts ...Option) grpc.StreamServerInterceptor {
	o := newOptions(opts)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := o.authenticate(ss.Context(), v, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }
