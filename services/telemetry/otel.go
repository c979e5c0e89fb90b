// Package telemetry sets up OpenTelemetry tracing.
package telemetry

import (
	"context"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/nexaric/portal/core"
)

const defaultEndpoint = "http://localhost:4318/v1/traces"

// InitTracer installs the global tracer provider and returns its shutdown func.
// With telemetry disabled the global no-op provider stays in place.
func InitTracer(conf *core.Config, logger core.Logger) (func(), error) {
	if !conf.Telemetry.Enabled {
		return func() {}, nil
	}
	ctx := context.Background()

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(exporterOptions(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"))...))
	if err != nil {
		return nil, errors.Wrap(err, "creating OTLP exporter")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(conf.Telemetry.ServiceName),
			semconv.ServiceVersionKey.String(conf.Build),
			semconv.DeploymentEnvironmentKey.String(conf.Env),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry: tracing enabled", map[string]interface{}{"service": conf.Telemetry.ServiceName})
	return func() {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("telemetry: shutting down tracer provider", err)
		}
	}, nil
}

// exporterOptions accepts a full URL or a host:port.
func exporterOptions(raw string) []otlptracehttp.Option {
	if raw == "" {
		raw = defaultEndpoint
	}
	endpoint, path, insecure := raw, "/v1/traces", true
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if u, err := url.Parse(raw); err == nil {
			if u.Host != "" {
				endpoint = u.Host
			}
			if u.Path != "" {
				path = u.Path
			}
			insecure = u.Scheme == "http"
		}
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithURLPath(path),
	}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}
