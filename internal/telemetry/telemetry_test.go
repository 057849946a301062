package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/meshflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

// saveAndRestoreGlobalProviders snapshots the current global OTel providers
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	logger := zaptest.NewLogger(t)

	cfg := config.TelemetryConfig{
		Enabled: false,
	}

	p, err := Init(context.Background(), cfg, "", logger)
	require.NoError(t, err)
	require.NotNil(t, p)

	// Noop providers leave the internal fields nil
	assert.Nil(t, p.tp, "TracerProvider should be nil when disabled")
	assert.Nil(t, p.mp, "MeterProvider should be nil when disabled")
	assert.Zero(t, p.SampleRate())
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	logger := zaptest.NewLogger(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "meshflow-test",
		SampleRate:   0.5,
	}

	p, err := Init(context.Background(), cfg, "1.2.3", logger)
	require.NoError(t, err)
	require.NotNil(t, p)

	// Real providers populate both internal fields
	assert.NotNil(t, p.tp, "TracerProvider should be set when enabled")
	assert.NotNil(t, p.mp, "MeterProvider should be set when enabled")
	assert.Equal(t, 0.5, p.SampleRate())

	// Global providers should be the SDK types (not noop)
	globalTP := otel.GetTracerProvider()
	globalMP := otel.GetMeterProvider()
	_, tpIsSDK := globalTP.(*sdktrace.TracerProvider)
	_, mpIsSDK := globalMP.(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be *sdktrace.TracerProvider")
	assert.True(t, mpIsSDK, "global MeterProvider should be *sdkmetric.MeterProvider")

	// Cleanup: shutdown to release resources (short timeout, no collector running)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func TestProviders_SetSampleRate(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	logger := zaptest.NewLogger(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "meshflow-sampler-test",
		SampleRate:   1.0,
	}

	p, err := Init(context.Background(), cfg, "", logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	require.Equal(t, 1.0, p.SampleRate())

	p.SetSampleRate(0.25)
	assert.Equal(t, 0.25, p.SampleRate())

	// Same rate is a no-op
	p.SetSampleRate(0.25)
	assert.Equal(t, 0.25, p.SampleRate())
}

func TestProviders_SetSampleRate_Noop(t *testing.T) {
	logger := zaptest.NewLogger(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, "", logger)
	require.NoError(t, err)

	// Disabled providers swallow rate changes without panicking
	assert.NotPanics(t, func() { p.SetSampleRate(0.9) })
	assert.Zero(t, p.SampleRate())

	var nilP *Providers
	assert.NotPanics(t, func() { nilP.SetSampleRate(0.9) })
	assert.Zero(t, nilP.SampleRate())
}

func TestDynamicSampler_Decisions(t *testing.T) {
	tid, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	params := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       tid,
		Name:          "convert",
		Kind:          trace.SpanKindInternal,
	}

	s := newDynamicSampler(1.0)
	assert.Equal(t, sdktrace.RecordAndSample, s.ShouldSample(params).Decision)

	s.setRate(0)
	assert.Equal(t, sdktrace.Drop, s.ShouldSample(params).Decision)

	assert.Contains(t, s.Description(), "DynamicTraceIDRatio")
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	// A nil *Providers must not panic on Shutdown.
	var p *Providers
	err := p.Shutdown(context.Background())
	assert.NoError(t, err)
}

func TestProviders_Shutdown_Noop(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	logger := zaptest.NewLogger(t)

	cfg := config.TelemetryConfig{Enabled: false}
	p, err := Init(context.Background(), cfg, "", logger)
	require.NoError(t, err)

	// Shutdown on noop providers should return nil
	err = p.Shutdown(context.Background())
	assert.NoError(t, err)
}

func TestProviders_Shutdown_Real(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	logger := zaptest.NewLogger(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "meshflow-shutdown-test",
		SampleRate:   1.0,
	}

	p, err := Init(context.Background(), cfg, "", logger)
	require.NoError(t, err)
	require.NotNil(t, p.tp)
	require.NotNil(t, p.mp)

	// Shutdown completes without panic. The exporter may return a
	// connection-refused error because no OTLP collector is running,
	// which is expected in a test environment. We only verify it
	// doesn't panic and finishes within the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	assert.NotPanics(t, func() {
		_ = p.Shutdown(ctx)
	})
}

func TestBuildVersion(t *testing.T) {
	v := buildVersion()
	assert.NotEmpty(t, v, "buildVersion should return a non-empty string")
	// In test binaries, debug.ReadBuildInfo typically returns "(devel)",
	// so buildVersion falls back to "dev".
	assert.Equal(t, "dev", v)
}
