package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when the host does not name itself
	DefaultServiceName = "oauth2-server"

	// DefaultServiceVersion is used when no version is provided
	DefaultServiceVersion = "unknown"

	meterName  = "github.com/embedauth/oauth2-server"
	tracerName = "github.com/embedauth/oauth2-server"
)

// Config holds instrumentation configuration
type Config struct {
	// ServiceName is the name of the embedding service
	ServiceName string

	// ServiceVersion is the version of the embedding service
	ServiceVersion string

	// MeterProvider supplies metric instruments. Nil means no-op.
	MeterProvider metric.MeterProvider

	// TracerProvider supplies tracers. Nil means no-op.
	TracerProvider trace.TracerProvider

	// Resource allows custom resource attributes; a default resource with
	// service name and version is created when nil.
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components for the
// library's three pipelines.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics
}

// New creates a new instrumentation instance
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:         config,
		resource:       res,
		meterProvider:  config.MeterProvider,
		tracerProvider: config.TracerProvider,
	}
	if inst.meterProvider == nil {
		inst.meterProvider = noop.NewMeterProvider()
	}
	if inst.tracerProvider == nil {
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	metrics, err := newMetrics(inst.meterProvider.Meter(meterName))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	inst.metrics = metrics

	return inst, nil
}

// Metrics returns the pre-configured metric instruments
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// Tracer returns a tracer for the library
func (i *Instrumentation) Tracer() trace.Tracer {
	return i.tracerProvider.Tracer(tracerName)
}

// Resource returns the resource describing the embedding service
func (i *Instrumentation) Resource() *resource.Resource {
	return i.resource
}
