package routes

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"screenshot-capturer/internal/myhttp"
	"screenshot-capturer/internal/stats"
	"strings"

	pyroscopepprof "github.com/grafana/pyroscope-go/http/pprof"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
)

type Config struct {
	Logger                           *slog.Logger
	HTTPRequestsDurationMicroSeconds metric.Int64Histogram
	Screenshots                      *Screenshots
	Recorder                         *stats.Recorder
	// Gatherer backs GET /metrics; defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Debug    bool
}

// NewMux registers every route of the service.
func NewMux(c Config) http.Handler {
	mux := myhttp.NewRouter(c.Logger, c.HTTPRequestsDurationMicroSeconds)

	totalRoutes := func() int {
		n := 0
		for _, p := range mux.Patterns() {
			if strings.Contains(p, " /v1/") {
				n++
			}
		}
		return n
	}

	mux.HandleFuncWithMiddleware("GET /v1/hello", Hello())
	mux.HandleFuncWithMiddleware("GET /v1/health", Health())
	mux.HandleFuncWithMiddleware("GET /v1/metrics", Metrics(totalRoutes, c.Recorder))
	mux.HandleFuncWithMiddleware("POST /v1/capture", Capture(c.Screenshots))

	mux.HandleFuncWithMiddleware("GET /{$}", Page())
	mux.HandleFuncWithMiddleware("POST /{$}", Submit(c.Screenshots))
	mux.HandleFuncWithMiddleware("GET /screenshots/{name}", Screenshot(c.Screenshots))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(http.StatusText(http.StatusOK)))
	})

	gatherer := c.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	if c.Debug {
		mux.HandleFunc("GET /debug/pprof/", pprof.Index)
		mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
		mux.HandleFunc("GET /debug/pprof/profile", pyroscopepprof.Profile)
	}

	return myhttp.CORSPrefix("/v1/", mux)
}
