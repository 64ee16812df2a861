package myhttp_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"screenshot-capturer/internal/myhttp"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/metric/noop"
)

func newRouter(t *testing.T) *myhttp.Router {
	t.Helper()
	histogram, err := noop.NewMeterProvider().Meter("test").Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		t.Fatal(err)
	}
	return myhttp.NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), histogram)
}

func TestRouterRecoversPanic(t *testing.T) {
	t.Parallel()

	router := newRouter(t)
	router.HandleFuncWithMiddleware("GET /panic", func(w http.ResponseWriter, r *http.Request) {
		panic(42)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if diff := cmp.Diff(http.StatusInternalServerError, w.Code); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestRouterLogger(t *testing.T) {
	t.Parallel()

	router := newRouter(t)
	var got *slog.Logger
	router.HandleFuncWithMiddleware("GET /logger", func(w http.ResponseWriter, r *http.Request) {
		got = myhttp.Logger(r.Context())
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/logger", nil))

	if got == nil || got == slog.Default() {
		t.Errorf("expected a request scoped logger")
	}
}

func TestRouterRequestID(t *testing.T) {
	t.Parallel()

	router := newRouter(t)
	var got string
	router.HandleFuncWithMiddleware("GET /id", func(w http.ResponseWriter, r *http.Request) {
		got = myhttp.RequestID(r.Context())
	})

	const id = "9b2d4c1e-6f3a-4e8b-a1c2-3d4e5f6a7b8c"
	request := httptest.NewRequest(http.MethodGet, "/id", nil)
	request.Header.Set(myhttp.RequestIDHeader, id)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, request)
	if got != id || w.Header().Get(myhttp.RequestIDHeader) != id {
		t.Errorf("expected %s to be kept, got %q", id, got)
	}

	request = httptest.NewRequest(http.MethodGet, "/id", nil)
	request.Header.Set(myhttp.RequestIDHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, request)
	if got == "not-a-uuid" || got == "" || w.Header().Get(myhttp.RequestIDHeader) != got {
		t.Errorf("expected a generated request id, got %q", got)
	}
}

func TestRouterPatterns(t *testing.T) {
	t.Parallel()

	router := newRouter(t)
	noContent := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
	router.HandleFuncWithMiddleware("GET /v1/hello", noContent)
	router.HandleFuncWithMiddleware("GET /v1/health", noContent)
	router.HandleFunc("GET /healthz", noContent)

	if diff := cmp.Diff([]string{"GET /v1/hello", "GET /v1/health"}, router.Patterns()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCORSPrefix(t *testing.T) {
	t.Parallel()

	handler := myhttp.CORSPrefix("/v1/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	preflight := httptest.NewRequest(http.MethodOptions, "/v1/capture", nil)
	preflight.Header.Set("Origin", "https://example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight.Header.Set("Access-Control-Request-Headers", "content-type")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, preflight)

	if diff := cmp.Diff(http.StatusNoContent, w.Code); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("*", w.Header().Get("Access-Control-Allow-Origin")); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("content-type", w.Header().Get("Access-Control-Allow-Headers")); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/hello", nil))
	if diff := cmp.Diff("*", w.Header().Get("Access-Control-Allow-Origin")); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if diff := cmp.Diff("", w.Header().Get("Access-Control-Allow-Origin")); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
