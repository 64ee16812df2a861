package telemetry

import (
	"context"
	"errors"
	"runtime"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/xerrors"
)

type Config struct {
	ServiceName string
	// PyroscopeEndpoint enables continuous profiling when set.
	PyroscopeEndpoint string
	// Traces exports spans over OTLP gRPC, configured by the usual
	// OTEL_EXPORTER_OTLP_* variables.
	Traces bool
	// Registerer receives the Prometheus collector; defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Telemetry owns the global meter and tracer providers and the profiler.
type Telemetry struct {
	Meter                            metric.Meter
	HTTPRequestsDurationMicroSeconds metric.Int64Histogram

	meterProvider *sdkmetric.MeterProvider
	traceProvider *sdktrace.TracerProvider
	profiler      *pyroscope.Profiler
}

func Start(ctx context.Context, c Config) (*Telemetry, error) {
	t := &Telemetry{}

	if c.PyroscopeEndpoint != "" {
		runtime.SetMutexProfileFraction(1)
		runtime.SetBlockProfileRate(1)

		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: c.ServiceName,
			ServerAddress:   c.PyroscopeEndpoint,
			UploadRate:      60 * time.Second,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
				pyroscope.ProfileGoroutines,
				pyroscope.ProfileMutexCount,
				pyroscope.ProfileMutexDuration,
				pyroscope.ProfileBlockCount,
				pyroscope.ProfileBlockDuration,
			},
		})
		if err != nil {
			return nil, xerrors.Errorf("failed to create profiler: %w", err)
		}
		t.profiler = profiler
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	r, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(c.ServiceName)),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to create resource: %w", err)
	}

	if c.Traces {
		traceExporter, err := otlptracegrpc.New(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to create trace exporter: %w", err)
		}
		t.traceProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(r),
			sdktrace.WithBatcher(traceExporter),
		)
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(t.traceProvider))
	}

	registerer := c.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registerer))
	if err != nil {
		return nil, xerrors.Errorf("failed to create exporter: %w", err)
	}
	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(r),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(t.meterProvider)

	// NOTE: Gauge(UpDownCounter), Summary or Untyped does not support exemplars
	// https://github.com/prometheus/client_golang/blob/v1.20.4/prometheus/metric.go#L200
	t.Meter = t.meterProvider.Meter(c.ServiceName)
	t.HTTPRequestsDurationMicroSeconds, err = t.Meter.Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		return nil, xerrors.Errorf("failed to create histogram: %w", err)
	}

	return t, nil
}

// Shutdown flushes spans and stops the profiler. It keeps going after a
// failure and returns every error.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.traceProvider != nil {
		if err := t.traceProvider.Shutdown(ctx); err != nil {
			errs = append(errs, xerrors.Errorf("failed to shutdown trace provider: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, xerrors.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	if t.profiler != nil {
		if err := t.profiler.Stop(); err != nil {
			errs = append(errs, xerrors.Errorf("failed to shutdown profiler: %w", err))
		}
	}
	return errors.Join(errs...)
}
