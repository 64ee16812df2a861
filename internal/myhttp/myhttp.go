package myhttp

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/metric"
)

func NewRouter(logger *slog.Logger, httpRequestsDurationMicroSeconds metric.Int64Histogram) *Router {
	return &Router{
		ServeMux:                         http.NewServeMux(),
		logger:                           logger,
		httpRequestsDurationMicroSeconds: httpRequestsDurationMicroSeconds,
	}
}

// Router wraps every route registered through it in the request middleware.
type Router struct {
	*http.ServeMux
	logger                           *slog.Logger
	httpRequestsDurationMicroSeconds metric.Int64Histogram
	patterns                         []string
}

func (m *Router) HandleWithMiddleware(pattern string, handler http.Handler) {
	m.patterns = append(m.patterns, pattern)
	m.ServeMux.Handle(pattern, m.middleware(pattern, handler))
}

func (m *Router) HandleFuncWithMiddleware(pattern string, handler http.HandlerFunc) {
	m.HandleWithMiddleware(pattern, handler)
}

// Patterns lists the routes registered with middleware.
func (m *Router) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

type loggerKey struct{}

// Logger returns the request scoped logger, or slog.Default outside a
// request.
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// RequestIDHeader carries a v4 UUID identifying the request. Invalid or
// missing values are replaced.
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
