package connectutil

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame/security"
	connectInterceptors "github.com/pitabwire/frame/security/interceptors/connect"
	securityhttp "github.com/pitabwire/frame/security/interceptors/httptor"
)

// DefaultOptions returns handler options for local and test servers:
// request logging and the JSON codec, no authentication.
func DefaultOptions() []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithInterceptors(NewLoggingInterceptor()),
		WithJSON(),
	}
}

// AuthenticatedOptions returns handler options with frame's security
// interceptor chain (OpenTelemetry, validation, authentication) followed by
// request logging, plus the JSON codec.
func AuthenticatedOptions(ctx context.Context, authenticator security.Authenticator) ([]connect.HandlerOption, error) {
	interceptors, err := connectInterceptors.DefaultList(ctx, authenticator)
	if err != nil {
		return nil, err
	}
	interceptors = append(interceptors, NewLoggingInterceptor())

	return []connect.HandlerOption{
		connect.WithInterceptors(interceptors...),
		WithJSON(),
	}, nil
}

// AuthenticatedHTTPMiddleware wraps an http.Handler with frame's
// authentication middleware, validating bearer tokens on plain HTTP
// endpoints such as the presentation websocket.
func AuthenticatedHTTPMiddleware(handler http.Handler, authenticator security.Authenticator) http.Handler {
	return securityhttp.AuthenticationMiddleware(handler, authenticator)
}

// DefaultClientOptions returns the client options matching DefaultOptions.
func DefaultClientOptions() []connect.ClientOption {
	return []connect.ClientOption{
		connect.WithInterceptors(NewLoggingInterceptor()),
		WithJSON(),
	}
}

// sessionScoped is implemented by request messages addressed to a session.
type sessionScoped interface {
	GetSessionID() string
}

func sessionAttr(msg any) (slog.Attr, bool) {
	if s, ok := msg.(sessionScoped); ok && s.GetSessionID() != "" {
		return slog.String("session_id", s.GetSessionID()), true
	}
	return slog.Attr{}, false
}

type loggingInterceptor struct{}

// NewLoggingInterceptor creates an interceptor that logs procedure, session,
// duration and errors for unary and streaming calls.
func NewLoggingInterceptor() connect.Interceptor {
	return &loggingInterceptor{}
}

func (l *loggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		attrs := []any{
			slog.String("procedure", req.Spec().Procedure),
			slog.Duration("duration", time.Since(start)),
		}
		if a, ok := sessionAttr(req.Any()); ok {
			attrs = append(attrs, a)
		}

		if err != nil {
			attrs = append(attrs, slog.String("code", connect.CodeOf(err).String()), slog.String("error", err.Error()))
			slog.WarnContext(ctx, "rpc error", attrs...)
		} else {
			slog.DebugContext(ctx, "rpc ok", attrs...)
		}
		return resp, err
	}
}

func (l *loggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		slog.DebugContext(ctx, "rpc stream client start", slog.String("procedure", spec.Procedure))
		return next(ctx, spec)
	}
}

func (l *loggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		slog.DebugContext(ctx, "rpc stream start", slog.String("procedure", conn.Spec().Procedure))

		err := next(ctx, conn)

		attrs := []any{
			slog.String("procedure", conn.Spec().Procedure),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil && connect.CodeOf(err) != connect.CodeCanceled {
			attrs = append(attrs, slog.String("error", err.Error()))
			slog.WarnContext(ctx, "rpc stream error", attrs...)
		} else {
			slog.DebugContext(ctx, "rpc stream closed", attrs...)
		}
		return err
	}
}
