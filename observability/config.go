package observability

import (
	"maps"
	"strings"
	"time"
)

const (
	// EndpointStdout writes telemetry to stdout, for local runs.
	EndpointStdout = "stdout"

	// ProtocolHTTP specifies OTLP over HTTP/protobuf.
	ProtocolHTTP = "http"

	// ProtocolGRPC specifies OTLP over gRPC.
	ProtocolGRPC = "grpc"

	// CompressionGzip specifies gzip compression for OTLP export.
	CompressionGzip = "gzip"

	// CompressionNone disables compression for OTLP export.
	CompressionNone = "none"

	// TemporalityDelta reports the change since the last export.
	TemporalityDelta = "delta"

	// TemporalityCumulative reports the total since the start of measurement.
	TemporalityCumulative = "cumulative"

	// HistogramAggregationExponential selects base-2 exponential buckets.
	HistogramAggregationExponential = "exponential"

	// HistogramAggregationExplicit selects the SDK's fixed bucket boundaries.
	HistogramAggregationExplicit = "explicit"

	// EnvironmentDevelopment is the default environment name.
	EnvironmentDevelopment = "development"
)

// BoolPtr returns a pointer to v, for optional boolean fields.
func BoolPtr(v bool) *bool {
	return &v
}

// Float64Ptr returns a pointer to v, for optional float fields.
func Float64Ptr(v float64) *float64 {
	return &v
}

// Config controls tracing and metrics for fetch calls. When Enabled is
// false every provider is a no-op.
type Config struct {
	Enabled     bool          `mapstructure:"enabled"`
	Service     ServiceConfig `mapstructure:"service"`
	Environment string        `mapstructure:"environment"`
	Trace       TraceConfig   `mapstructure:"trace"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// ServiceConfig identifies the process in exported telemetry.
type ServiceConfig struct {
	// Name is required when observability is enabled.
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// TraceConfig defines span export.
type TraceConfig struct {
	// Enabled: nil applies the default (true when observability is enabled).
	Enabled *bool `mapstructure:"enabled"`

	// Endpoint is "stdout", an http(s) URL for OTLP/HTTP, or host:port for
	// OTLP/gRPC.
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	Compression string            `mapstructure:"compression"`
	Sample      SampleConfig      `mapstructure:"sample"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Export      ExportConfig      `mapstructure:"export"`
}

// SampleConfig defines trace sampling.
type SampleConfig struct {
	// Rate is the fraction of traces kept, 0.0 to 1.0. nil defaults to 1.0;
	// an explicit 0.0 is respected.
	Rate *float64 `mapstructure:"rate"`
}

// BatchConfig defines span batching.
type BatchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	Size      int           `mapstructure:"size"`
	QueueSize int           `mapstructure:"queue_size"`
}

// ExportConfig bounds a single export call.
type ExportConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// MetricsConfig defines metric export. Protocol, Insecure and Headers fall
// back to the trace settings when unset.
type MetricsConfig struct {
	Enabled              *bool             `mapstructure:"enabled"`
	Endpoint             string            `mapstructure:"endpoint"`
	Protocol             string            `mapstructure:"protocol"`
	Insecure             *bool             `mapstructure:"insecure"`
	Headers              map[string]string `mapstructure:"headers"`
	Compression          string            `mapstructure:"compression"`
	Temporality          string            `mapstructure:"temporality"`
	HistogramAggregation string            `mapstructure:"histogram_aggregation"`
	Interval             time.Duration     `mapstructure:"interval"`
	Export               ExportConfig      `mapstructure:"export"`
}

// ApplyDefaults fills every unset field. NewProvider calls it on a copy, so
// callers only need it to inspect the effective values.
func (c *Config) ApplyDefaults() {
	if c.Service.Version == "" {
		c.Service.Version = "unknown"
	}
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}
	c.applyTraceDefaults()
	c.applyMetricsDefaults()
}

// local reports whether exports should favour latency over batching.
func (c *Config) local(endpoint string) bool {
	return c.Environment == EnvironmentDevelopment || endpoint == EndpointStdout
}

func (c *Config) applyTraceDefaults() {
	t := &c.Trace
	if t.Endpoint == "" {
		t.Endpoint = EndpointStdout
	}
	if c.Enabled && t.Enabled == nil {
		t.Enabled = BoolPtr(true)
	}
	if t.Protocol == "" {
		t.Protocol = ProtocolHTTP
	}
	if t.Endpoint == EndpointStdout {
		t.Insecure = true
	}
	if t.Compression == "" {
		t.Compression = CompressionGzip
	}
	if t.Sample.Rate == nil {
		t.Sample.Rate = Float64Ptr(1.0)
	}
	if t.Batch.Timeout == 0 {
		if c.local(t.Endpoint) {
			t.Batch.Timeout = 500 * time.Millisecond
		} else {
			t.Batch.Timeout = 5 * time.Second
		}
	}
	if t.Batch.Size == 0 {
		t.Batch.Size = 512
	}
	if t.Batch.QueueSize == 0 {
		t.Batch.QueueSize = 2048
	}
	if t.Export.Timeout == 0 {
		if c.local(t.Endpoint) {
			t.Export.Timeout = 10 * time.Second
		} else {
			t.Export.Timeout = 60 * time.Second
		}
	}
}

func (c *Config) applyMetricsDefaults() {
	m := &c.Metrics
	if m.Endpoint == "" {
		m.Endpoint = EndpointStdout
	}
	if c.Enabled && m.Enabled == nil {
		m.Enabled = BoolPtr(true)
	}
	if m.Protocol == "" {
		m.Protocol = c.Trace.Protocol
	}
	if m.Insecure == nil {
		m.Insecure = BoolPtr(c.Trace.Insecure)
	}
	if m.Headers == nil && c.Trace.Headers != nil {
		m.Headers = maps.Clone(c.Trace.Headers)
	}
	if m.Compression == "" {
		m.Compression = CompressionGzip
	}
	if m.Temporality == "" {
		m.Temporality = TemporalityCumulative
	}
	if m.HistogramAggregation == "" {
		m.HistogramAggregation = HistogramAggregationExplicit
	}
	if m.Interval == 0 {
		m.Interval = 10 * time.Second
	}
	if m.Export.Timeout == 0 {
		if c.local(m.Endpoint) {
			m.Export.Timeout = 10 * time.Second
		} else {
			m.Export.Timeout = 60 * time.Second
		}
	}
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.Service.Name == "" {
		return ErrMissingServiceName
	}
	if err := c.validateTrace(); err != nil {
		return err
	}
	return c.validateMetrics()
}

func (c *Config) validateTrace() error {
	if r := c.Trace.Sample.Rate; r != nil && (*r < 0.0 || *r > 1.0) {
		return ErrInvalidSampleRate
	}
	if err := validateCompression(c.Trace.Compression); err != nil {
		return err
	}
	return validateEndpoint(c.Trace.Endpoint, c.Trace.Protocol, ProtocolHTTP)
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled == nil || !*c.Metrics.Enabled {
		return nil
	}
	if err := validateCompression(c.Metrics.Compression); err != nil {
		return err
	}
	switch c.Metrics.Temporality {
	case "", TemporalityDelta, TemporalityCumulative:
	default:
		return ErrInvalidTemporality
	}
	switch c.Metrics.HistogramAggregation {
	case "", HistogramAggregationExponential, HistogramAggregationExplicit:
	default:
		return ErrInvalidHistogramAggregation
	}
	fallback := c.Trace.Protocol
	if fallback == "" {
		fallback = ProtocolHTTP
	}
	return validateEndpoint(c.Metrics.Endpoint, c.Metrics.Protocol, fallback)
}

func validateCompression(compression string) error {
	switch compression {
	case "", CompressionGzip, CompressionNone:
		return nil
	default:
		return ErrInvalidCompression
	}
}

// validateEndpoint checks protocol and endpoint shape: gRPC takes host:port,
// HTTP takes a full http(s) URL.
func validateEndpoint(endpoint, protocol, fallback string) error {
	if endpoint == EndpointStdout || endpoint == "" {
		return nil
	}
	if protocol == "" {
		protocol = fallback
	}
	hasScheme := strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
	switch protocol {
	case ProtocolGRPC:
		if hasScheme {
			return ErrInvalidEndpointFormat
		}
	case ProtocolHTTP:
		if !hasScheme {
			return ErrInvalidEndpointFormat
		}
	default:
		return ErrInvalidProtocol
	}
	return nil
}
