package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// otlpExportInterval is how often push exporters flush metrics.
const otlpExportInterval = 15 * time.Second

// Provider bundles the configured OpenTelemetry pieces: a Metrics recorder,
// an audit logger, and the SDK providers that need shutting down on exit.
//
// A disabled Provider is fully usable; its Metrics methods are no-ops and
// Shutdown returns immediately. Callers never need to branch on Enabled
// before recording.
type Provider struct {
	config         Config
	metrics        *Metrics
	auditLogger    *AuditLogger
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

// NewProvider initializes instrumentation from the config. When the config
// is disabled it returns a no-op provider without touching the global
// OpenTelemetry state.
//
// When enabled, the selected exporters are installed as the process-wide
// meter and tracer providers. The prometheus exporter registers with the
// default prometheus registry, so promhttp.Handler() exposes it.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	p := &Provider{
		config:      config,
		metrics:     &Metrics{},
		auditLogger: NewAuditLogger(nil),
	}

	if !config.Enabled {
		return p, nil
	}

	res, err := newTelemetryResource(config)
	if err != nil {
		return nil, err
	}

	reader, err := newMetricReader(ctx, config)
	if err != nil {
		return nil, err
	}
	if reader != nil {
		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		otel.SetMeterProvider(p.meterProvider)

		meter := p.meterProvider.Meter(TracerName)
		metrics, err := NewMetrics(meter, config.DetailedLabels)
		if err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
		p.metrics = metrics
	}

	spanExporter, err := newSpanExporter(ctx, config)
	if err != nil {
		return nil, err
	}
	if spanExporter != nil {
		p.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spanExporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.TraceSamplingRate))),
		)
		otel.SetTracerProvider(p.tracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	return p, nil
}

// Enabled reports whether instrumentation was configured on.
func (p *Provider) Enabled() bool {
	return p != nil && p.config.Enabled
}

// Metrics returns the metrics recorder. Never nil; on a disabled provider
// every recording method is a no-op.
func (p *Provider) Metrics() *Metrics {
	if p == nil {
		return &Metrics{}
	}
	return p.metrics
}

// AuditLogger returns the audit logger for tool invocations.
func (p *Provider) AuditLogger() *AuditLogger {
	if p == nil {
		return NewAuditLogger(nil)
	}
	return p.auditLogger
}

// Config returns the configuration the provider was built with.
func (p *Provider) Config() Config {
	if p == nil {
		return Config{}
	}
	return p.config
}

// Shutdown flushes and stops the SDK providers. Safe to call on a disabled
// provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var errs []error
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// newTelemetryResource describes this process to telemetry backends.
func newTelemetryResource(config Config) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", config.ServiceName),
		attribute.String("service.version", config.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}
	return res, nil
}

// newMetricReader builds the reader for the configured metrics exporter.
// Returns nil when metrics export is off.
func newMetricReader(ctx context.Context, config Config) (sdkmetric.Reader, error) {
	switch config.MetricsExporter {
	case "prometheus", "":
		exporter, err := otelprom.New()
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		return exporter, nil

	case "otlp":
		opts := otlpMetricOptions(config)
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp metric exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(otlpExportInterval)), nil

	case "stdout":
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(otlpExportInterval)), nil

	case "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported metrics exporter %q", config.MetricsExporter)
	}
}

// newSpanExporter builds the exporter for the configured tracing backend.
// Returns nil when tracing is off.
func newSpanExporter(ctx context.Context, config Config) (sdktrace.SpanExporter, error) {
	switch config.TracingExporter {
	case "none", "":
		return nil, nil

	case "otlp":
		opts := otlpTraceOptions(config)
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", err)
		}
		return exporter, nil

	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		return exporter, nil

	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", config.TracingExporter)
	}
}

// otlpMetricOptions translates the config into exporter options. An empty
// endpoint defers to the OTEL_EXPORTER_OTLP_* environment handling built
// into the exporter.
func otlpMetricOptions(config Config) []otlpmetrichttp.Option {
	var opts []otlpmetrichttp.Option
	if config.OTLPEndpoint != "" {
		if strings.Contains(config.OTLPEndpoint, "://") {
			opts = append(opts, otlpmetrichttp.WithEndpointURL(config.OTLPEndpoint))
		} else {
			opts = append(opts, otlpmetrichttp.WithEndpoint(config.OTLPEndpoint))
		}
	}
	if config.OTLPInsecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}

func otlpTraceOptions(config Config) []otlptracehttp.Option {
	var opts []otlptracehttp.Option
	if config.OTLPEndpoint != "" {
		if strings.Contains(config.OTLPEndpoint, "://") {
			opts = append(opts, otlptracehttp.WithEndpointURL(config.OTLPEndpoint))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(config.OTLPEndpoint))
		}
	}
	if config.OTLPInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}
