package fetch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/gaborage/upfetch/observability"
)

const (
	metricAttempts = "upfetch.fetch.attempts"
	metricRetries  = "upfetch.fetch.retries"
	metricFailures = "upfetch.fetch.failures"
	metricDuration = "upfetch.fetch.duration"

	outcomeSuccess = "success"
	outcomeError   = "error"
)

// clientMetrics holds the instruments recorded by Client.
type clientMetrics struct {
	attempts metric.Int64Counter
	retries  metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// newClientMetrics creates the instruments. An instrument that fails to
// register falls back to a no-op so fetching never depends on telemetry.
func newClientMetrics(meter metric.Meter) *clientMetrics {
	m := &clientMetrics{}

	var err error
	if m.attempts, err = observability.CreateCounter(meter, metricAttempts, "Requests sent, one per attempt",
		metric.WithUnit("{attempt}"),
	); err != nil {
		m.attempts = metricnoop.Int64Counter{}
	}
	if m.retries, err = observability.CreateCounter(meter, metricRetries, "Failed attempts followed by a retry",
		metric.WithUnit("{retry}"),
	); err != nil {
		m.retries = metricnoop.Int64Counter{}
	}
	if m.failures, err = observability.CreateCounter(meter, metricFailures, "Logical calls that ended without a response",
		metric.WithUnit("{call}"),
	); err != nil {
		m.failures = metricnoop.Int64Counter{}
	}
	if m.duration, err = observability.CreateHistogram(meter, metricDuration, "Duration of a single attempt",
		metric.WithUnit("ms"),
	); err != nil {
		m.duration = metricnoop.Float64Histogram{}
	}
	return m
}

func (m *clientMetrics) recordAttempt(ctx context.Context, opts Options, err error, elapsed time.Duration) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
	}
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", opts.Method),
		attribute.String("fetch.mode", string(opts.Mode)),
		attribute.String("fetch.outcome", outcome),
	)
	m.attempts.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}

func (m *clientMetrics) recordRetry(ctx context.Context, method string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("http.request.method", method)))
}

func (m *clientMetrics) recordFailure(ctx context.Context) {
	m.failures.Add(ctx, 1)
}
