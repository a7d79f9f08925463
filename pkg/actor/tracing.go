package actor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "xorbits/actor"

// TracingConfig toggles the optional span emitted around an Analyze call
// and each subtask dispatch. Off by default: a zero-value TracingConfig
// produces a no-op tracer with zero export overhead, the same seam
// TaskDriverConfig.Tracing is documented to provide.
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	JaegerEndpoint string // e.g. "http://localhost:14268/api/traces"
}

// shutdownFunc flushes and releases whatever NewTracer allocated.
type shutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// NewTracer builds the tracer TaskDriver spans Analyze and subtask dispatch
// with. When cfg.Enabled is false (the default) it returns the global
// no-op tracer, so a driver built without tracing configured pays no
// exporter cost.
func NewTracer(cfg TracingConfig) (trace.Tracer, shutdownFunc, error) {
	if !cfg.Enabled {
		return trace.NewNoopTracerProvider().Tracer(tracerName), noopShutdown, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "xorbits-actor"
	}

	var endpointOpts []jaeger.CollectorEndpointOption
	if cfg.JaegerEndpoint != "" {
		endpointOpts = append(endpointOpts, jaeger.WithEndpoint(cfg.JaegerEndpoint))
	}
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(endpointOpts...))
	if err != nil {
		return nil, nil, fmt.Errorf("actor: build jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("actor: build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer(tracerName), tp.Shutdown, nil
}

// startSpan is a small convenience wrapper so call sites in driver.go read
// the same whether tracing is enabled or not: callers always build attrs,
// and a no-op tracer discards them.
func startSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
