// Package telemetry wires OpenTelemetry tracing for the dashboard service.
// Spans from the auth operations and the HTTP layer go to an OTLP collector
// when one is configured; otherwise tracing is a no-op but W3C trace
// context still propagates through the service.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

const ServiceName = "dashboard-service"

type Config struct {
	// Endpoint is the collector address. Empty disables export.
	Endpoint       string
	Insecure       bool
	ServiceVersion string
	// SampleRatio applies to root spans. Zero or anything above one samples
	// every trace.
	SampleRatio float64
}

// Shutdown flushes pending spans and stops the exporter.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

func Setup(ctx context.Context, cfg Config, logger *zap.Logger) Shutdown {
	if logger == nil {
		logger = zap.NewNop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if cfg.Endpoint == "" {
		logger.Debug("tracing disabled, no collector endpoint")
		return noop
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOptions(cfg)...)
	if err != nil {
		logger.Warn("otel exporter error", zap.Error(err))
		return noop
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(ctx, cfg, logger)),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(provider)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("otel export failed", zap.Error(err))
	}))
	logger.Info("tracing enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.Bool("insecure", cfg.Insecure),
		zap.Float64("sample_ratio", cfg.SampleRatio),
	)
	return provider.Shutdown
}

// Sampler keeps the parent's decision for propagated traces and samples
// root spans by trace id.
func Sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func exporterOptions(cfg Config) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func newResource(ctx context.Context, cfg Config, logger *zap.Logger) *resource.Resource {
	attrs := resource.WithAttributes(semconv.ServiceName(ServiceName))
	if cfg.ServiceVersion != "" {
		attrs = resource.WithAttributes(semconv.ServiceName(ServiceName), semconv.ServiceVersion(cfg.ServiceVersion))
	}
	res, err := resource.New(ctx, attrs, resource.WithTelemetrySDK())
	if err != nil {
		logger.Warn("otel resource error", zap.Error(err))
		return resource.Default()
	}
	return res
}
