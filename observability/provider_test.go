package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const testTracerName = "upfetch-test-tracer"

func shutdownQuickly(t *testing.T, p Provider) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestNewProviderNilConfig(t *testing.T) {
	p, err := NewProvider(nil)
	assert.ErrorIs(t, err, ErrNilConfig)
	assert.Nil(t, p)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(&Config{Enabled: false})
	require.NoError(t, err)

	_, ok := p.(*noopProvider)
	assert.True(t, ok, "expected noopProvider when disabled")
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderInvalidConfig(t *testing.T) {
	p, err := NewProvider(&Config{Enabled: true})
	assert.ErrorIs(t, err, ErrMissingServiceName)
	assert.Nil(t, p)
}

func TestNewProviderStdout(t *testing.T) {
	cfg := enabledConfig()
	cfg.Trace.Batch.Timeout = 10 * time.Millisecond

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	defer shutdownQuickly(t, p)

	impl, ok := p.(*provider)
	require.True(t, ok)
	require.NotNil(t, impl.tracerProvider)
	require.NotNil(t, impl.meterProvider)
	assert.IsType(t, &sdktrace.TracerProvider{}, p.TracerProvider())
	assert.IsType(t, &sdkmetric.MeterProvider{}, p.MeterProvider())

	_, span := p.TracerProvider().Tracer(testTracerName).Start(context.Background(), "fetch.get")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.ForceFlush(context.Background()))
}

func TestNewProviderTracingOnly(t *testing.T) {
	cfg := enabledConfig()
	cfg.Metrics.Enabled = BoolPtr(false)

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	defer shutdownQuickly(t, p)

	impl := p.(*provider)
	assert.NotNil(t, impl.tracerProvider)
	assert.Nil(t, impl.meterProvider)
	assert.NotNil(t, p.MeterProvider(), "falls back to a no-op meter provider")
}

func TestNewProviderMetricsOnly(t *testing.T) {
	cfg := enabledConfig()
	cfg.Trace.Enabled = BoolPtr(false)

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	defer shutdownQuickly(t, p)

	assert.IsType(t, noop.TracerProvider{}, p.TracerProvider())
	assert.IsType(t, &sdkmetric.MeterProvider{}, p.MeterProvider())
}

func TestNewProviderOTLPExporters(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		protocol string
	}{
		{"http", testOTLPHTTPEndpoint, ProtocolHTTP},
		{"grpc", testOTLPGRPCEndpoint, ProtocolGRPC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := enabledConfig()
			cfg.Trace.Endpoint = tt.endpoint
			cfg.Trace.Protocol = tt.protocol
			cfg.Trace.Insecure = true
			cfg.Trace.Headers = map[string]string{"Authorization": testAuthToken}
			cfg.Metrics.Enabled = BoolPtr(false)

			p, err := NewProvider(cfg)
			require.NoError(t, err)
			defer shutdownQuickly(t, p)

			assert.NotNil(t, p.(*provider).tracerProvider)
		})
	}
}

func TestNewProviderOTLPMetrics(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		protocol string
	}{
		{"http", testOTLPHTTPEndpoint, ProtocolHTTP},
		{"grpc", testOTLPGRPCEndpoint, ProtocolGRPC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := enabledConfig()
			cfg.Trace.Enabled = BoolPtr(false)
			cfg.Metrics.Endpoint = tt.endpoint
			cfg.Metrics.Protocol = tt.protocol
			cfg.Metrics.Insecure = BoolPtr(true)
			cfg.Metrics.Compression = CompressionNone
			cfg.Metrics.Temporality = TemporalityDelta
			cfg.Metrics.HistogramAggregation = HistogramAggregationExponential

			p, err := NewProvider(cfg)
			require.NoError(t, err)
			defer shutdownQuickly(t, p)

			assert.NotNil(t, p.(*provider).meterProvider)
		})
	}
}

func TestNewProviderDoesNotMutateInputConfig(t *testing.T) {
	cfg := enabledConfig()

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	defer shutdownQuickly(t, p)

	assert.Nil(t, cfg.Trace.Enabled)
	assert.Nil(t, cfg.Trace.Sample.Rate)
	assert.Empty(t, cfg.Trace.Endpoint)
	assert.Empty(t, cfg.Environment)
}

func TestMustNewProvider(t *testing.T) {
	assert.NotPanics(t, func() {
		p := MustNewProvider(&Config{})
		assert.NotNil(t, p)
	})
	assert.Panics(t, func() {
		MustNewProvider(&Config{Enabled: true})
	})
}

func TestProviderMultipleShutdowns(t *testing.T) {
	cfg := enabledConfig()
	cfg.Metrics.Enabled = BoolPtr(false)

	p, err := NewProvider(cfg)
	require.NoError(t, err)

	assert.NoError(t, p.Shutdown(context.Background()))
	// The SDK reports repeated shutdowns as an error; it must not panic.
	assert.NotPanics(t, func() { _ = p.Shutdown(context.Background()) })
}
