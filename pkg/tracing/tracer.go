package tracing

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/nite-coder/refresh-dns/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nite-coder/refresh-dns"

// Tracer returns the tracer used for lookup spans. It is a no-op until
// NewTracerProvider installed a provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// NewTracerProvider builds an OTLP tracer provider and installs it globally.
// It returns nil when tracing is disabled.
func NewTracerProvider(opts config.TracingOptions) (*sdktrace.TracerProvider, error) {
	if !opts.Enabled {
		return nil, nil
	}

	if opts.Endpoint == "" {
		// use grpc as default
		opts.Endpoint = "localhost:4317"
	}

	if opts.Flush <= 0 {
		opts.Flush = 5 * time.Second
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	if opts.SamplingRate <= 0 {
		opts.SamplingRate = 1
	}

	exporter, err := newExporter(opts)
	if err != nil {
		return nil, err
	}

	res, err := newResource(opts)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SamplingRate))),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(opts.Flush)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp, nil
}

func newExporter(opts config.TracingOptions) (sdktrace.SpanExporter, error) {
	endpoint := strings.ToLower(opts.Endpoint)
	ctx := context.Background()

	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		tracingOptions := []otlptracehttp.Option{
			otlptracehttp.WithEndpointURL(opts.Endpoint),
			otlptracehttp.WithTimeout(opts.Timeout),
		}

		if opts.Insecure {
			tracingOptions = append(tracingOptions, otlptracehttp.WithInsecure())
		}

		return otlptracehttp.New(ctx, tracingOptions...)
	}

	tracingOptions := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithTimeout(opts.Timeout),
	}

	if opts.Insecure {
		tracingOptions = append(tracingOptions, otlptracegrpc.WithInsecure())
	}

	return otlptracegrpc.New(ctx, tracingOptions...)
}

func newResource(opts config.TracingOptions) (*resource.Resource, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "refresh-dns"
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(opts.ServiceName),
	}

	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range buildInfo.Settings {
			switch setting.Key {
			case "vcs.revision":
				attrs = append(attrs, attribute.String("vcs.revision", setting.Value))
			case "vcs.time":
				attrs = append(attrs, attribute.String("vcs.time", setting.Value))
			}
		}
	}

	return resource.New(
		context.Background(),
		resource.WithFromEnv(),
		resource.WithProcessPID(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
}
