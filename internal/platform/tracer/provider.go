package tracer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
)

// SetupProvider installs an SDK tracer provider as the global provider, sampling
// the given ratio of root spans. The returned func flushes and shuts it down.
func SetupProvider(serviceName, environment string, ratio float64, opts ...tracesdk.TracerProviderOption) func(context.Context) error {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("deployment.environment", environment),
	)
	opts = append([]tracesdk.TracerProviderOption{
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(ratio))),
	}, opts...)
	tp := tracesdk.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
