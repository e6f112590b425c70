// Package telemetry installs the OpenTelemetry meter and tracer providers used
// by the pipeline instruments. Nothing is exported unless configured.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ppiankov/astproof/internal/model"
)

// Exporter names
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

// ErrUnknownExporter is returned for an exporter name that is not supported
var ErrUnknownExporter = errors.New("unknown telemetry exporter")

// Telemetry owns the installed providers and their exporters
type Telemetry struct {
	shutdownFuncs []func(context.Context) error
	metricsAddr   string
}

// Init installs the configured providers as the otel globals. With both
// exporters set to "none" it installs nothing and Shutdown is a no-op.
// Shutdown must be called to flush the stdout exporters.
func Init(ctx context.Context, cfg model.TelemetryConfig, version string) (*Telemetry, error) {
	metrics, traces := normalize(cfg.Metrics), normalize(cfg.Traces)
	switch metrics {
	case ExporterNone, ExporterStdout, ExporterPrometheus:
	default:
		return nil, fmt.Errorf("%w: metrics %q", ErrUnknownExporter, cfg.Metrics)
	}
	switch traces {
	case ExporterNone, ExporterStdout:
	default:
		return nil, fmt.Errorf("%w: traces %q", ErrUnknownExporter, cfg.Traces)
	}

	t := &Telemetry{}
	if metrics == ExporterNone && traces == ExporterNone {
		return t, nil
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "astproof"),
		attribute.String("service.version", version),
	)

	var out io.Writer = os.Stderr
	if cfg.File != "" && (metrics == ExporterStdout || traces == ExporterStdout) {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open telemetry file: %w", err)
		}
		out = f
		// registered first so it closes after the exporters flush
		t.shutdownFuncs = append(t.shutdownFuncs, func(context.Context) error { return f.Close() })
	}

	if traces == ExporterStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		t.shutdownFuncs = append(t.shutdownFuncs, tp.Shutdown)
	}

	switch metrics {
	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(out), stdoutmetric.WithPrettyPrint())
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		)
		otel.SetMeterProvider(mp)
		t.shutdownFuncs = append(t.shutdownFuncs, mp.Shutdown)

	case ExporterPrometheus:
		mp, err := t.servePrometheus(cfg.PrometheusAddr, res)
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, err
		}
		otel.SetMeterProvider(mp)
		t.shutdownFuncs = append(t.shutdownFuncs, mp.Shutdown)
	}

	return t, nil
}

// servePrometheus starts a /metrics endpoint backed by a private registry
func (t *Telemetry) servePrometheus(addr string, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	registry := prometheus.NewRegistry()
	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()

	t.metricsAddr = ln.Addr().String()
	t.shutdownFuncs = append(t.shutdownFuncs, srv.Shutdown)

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	), nil
}

// MetricsAddr returns the bound /metrics address, or "" when not serving
func (t *Telemetry) MetricsAddr() string {
	return t.metricsAddr
}

// Shutdown flushes and stops everything Init started, latest first
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdownFuncs) - 1; i >= 0; i-- {
		if err := t.shutdownFuncs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdownFuncs = nil
	return errors.Join(errs...)
}

func normalize(name string) string {
	if name == "" {
		return ExporterNone
	}
	return name
}
