// =============================================================================
// MeshFlow OpenTelemetry SDK Initialization
// =============================================================================
// Wraps OTel SDK setup for traces and metrics. When telemetry is disabled,
// no exporters are created and global providers remain noop. The trace
// sampling ratio can be adjusted at runtime through Providers.SetSampleRate,
// which backs the hot-reloadable Telemetry.SampleRate config field.
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/BaSui01/meshflow/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Providers holds the OTel SDK TracerProvider and MeterProvider.
// When telemetry is disabled, the internal fields are nil and every
// method is a no-op.
type Providers struct {
	tp      *sdktrace.TracerProvider
	mp      *sdkmetric.MeterProvider
	sampler *dynamicSampler
	logger  *zap.Logger
}

// Init initializes the OTel SDK. When cfg.Enabled is false, it returns
// noop Providers without connecting to any external service.
//
// serviceVersion is reported as the service.version resource attribute;
// when empty, the module version from Go build info is used instead.
func Init(ctx context.Context, cfg config.TelemetryConfig, serviceVersion string, logger *zap.Logger) (*Providers, error) {
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	if serviceVersion == "" {
		serviceVersion = buildVersion()
	}

	// Build resource with service metadata
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	// Create OTLP gRPC trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	// Create OTLP gRPC metric exporter
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	// Create TracerProvider with a sampler whose ratio can change later
	sampler := newDynamicSampler(cfg.SampleRate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Create MeterProvider
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	// Register as global providers
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.String("service_version", serviceVersion),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Providers{tp: tp, mp: mp, sampler: sampler, logger: logger}, nil
}

// SetSampleRate swaps the trace sampling ratio without restarting the SDK.
// Safe to call on noop Providers.
func (p *Providers) SetSampleRate(rate float64) {
	if p == nil || p.sampler == nil {
		return
	}
	old := p.sampler.rate()
	if old == rate {
		return
	}
	p.sampler.setRate(rate)
	p.logger.Info("trace sample rate updated",
		zap.Float64("old_rate", old),
		zap.Float64("new_rate", rate))
}

// SampleRate reports the current trace sampling ratio, 0 for noop Providers.
func (p *Providers) SampleRate() float64 {
	if p == nil || p.sampler == nil {
		return 0
	}
	return p.sampler.rate()
}

// Shutdown flushes pending spans/metrics and closes exporters.
// Safe to call on noop Providers (nil tp/mp).
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// --- dynamic sampler ---

// samplerBox pairs a ratio with the sampler built from it so both swap
// atomically.
type samplerBox struct {
	rate    float64
	sampler sdktrace.Sampler
}

// dynamicSampler delegates to a TraceIDRatioBased sampler held behind an
// atomic pointer, so the ratio can change while spans are being started.
type dynamicSampler struct {
	cur atomic.Pointer[samplerBox]
}

func newDynamicSampler(rate float64) *dynamicSampler {
	d := &dynamicSampler{}
	d.setRate(rate)
	return d
}

func (d *dynamicSampler) setRate(rate float64) {
	d.cur.Store(&samplerBox{rate: rate, sampler: sdktrace.TraceIDRatioBased(rate)})
}

func (d *dynamicSampler) rate() float64 {
	return d.cur.Load().rate
}

// ShouldSample implements sdktrace.Sampler.
func (d *dynamicSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	return d.cur.Load().sampler.ShouldSample(p)
}

// Description implements sdktrace.Sampler.
func (d *dynamicSampler) Description() string {
	return fmt.Sprintf("DynamicTraceIDRatio{%g}", d.cur.Load().rate)
}

// buildVersion extracts the module version from Go build info.
// Falls back to "dev" if unavailable.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
