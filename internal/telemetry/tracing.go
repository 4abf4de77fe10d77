package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const serviceName = "github-activity-report"

// Runtime contains the initialized tracer provider and its shutdown hook.
type Runtime struct {
	TracerProvider *sdktrace.TracerProvider
	Shutdown       func(ctx context.Context) error
}

// Tracer returns the tracer used by the collection path.
func (r Runtime) Tracer() trace.Tracer {
	return r.TracerProvider.Tracer(serviceName)
}

// SetupTracing installs a global tracer provider. When enabled, every span
// is sampled and logged at debug level as it ends; otherwise spans are dropped.
func SetupTracing(enabled bool, logger *zap.Logger) (Runtime, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return Runtime{}, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if enabled {
		opts = append(opts,
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithSpanProcessor(&logProcessor{logger: logger}),
		)
	} else {
		opts = append(opts, sdktrace.WithSampler(sdktrace.NeverSample()))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return Runtime{
		TracerProvider: provider,
		Shutdown:       provider.Shutdown,
	}, nil
}

// logProcessor writes finished spans to the logger.
type logProcessor struct {
	logger *zap.Logger
}

func (p *logProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	fields := []zap.Field{
		zap.String("span", span.Name()),
		zap.Duration("duration", span.EndTime().Sub(span.StartTime())),
		zap.String("status", span.Status().Code.String()),
	}
	for _, attr := range span.Attributes() {
		fields = append(fields, zap.String(string(attr.Key), attr.Value.Emit()))
	}
	if desc := span.Status().Description; desc != "" {
		fields = append(fields, zap.String("error", desc))
	}
	p.logger.Debug("Span finished", fields...)
}

func (p *logProcessor) Shutdown(context.Context) error   { return nil }
func (p *logProcessor) ForceFlush(context.Context) error { return nil }
