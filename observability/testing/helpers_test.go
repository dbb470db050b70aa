package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	testCounter       = "test.counter"
	testHistogram     = "test.histogram"
	nonExistentMetric = "does.not.exist"
)

func TestNewTestTraceProvider(t *testing.T) {
	tp := NewTestTraceProvider()
	defer func() { assert.NoError(t, tp.Shutdown(context.Background())) }()

	_, span := tp.Tracer("test").Start(context.Background(), "fetch.get")
	span.SetAttributes(
		attribute.String("url.full", "https://am.example.com"),
		attribute.Int("fetch.max_attempts", 3),
		attribute.Bool("fetch.coalesced", false),
	)
	span.SetStatus(codes.Error, "boom")
	span.End()

	_, other := tp.Tracer("test").Start(context.Background(), "fetch.delete")
	other.End()

	collector := NewSpanCollector(t, tp.Exporter)
	assert.Equal(t, 2, collector.Len())

	got := collector.WithName("fetch.get").AssertCount(1).First()
	AssertSpanStatus(t, &got, codes.Error)
	AssertSpanAttribute(t, &got, "url.full", "https://am.example.com")
	AssertSpanAttribute(t, &got, "fetch.max_attempts", 3)
	AssertSpanAttribute(t, &got, "fetch.max_attempts", int64(3))
	AssertSpanAttribute(t, &got, "fetch.coalesced", false)

	assert.Equal(t, 0, collector.WithName("fetch.any").Len())
}

func TestMeterProviderHelpers(t *testing.T) {
	mp := NewTestMeterProvider()
	defer func() { assert.NoError(t, mp.Shutdown(context.Background())) }()

	meter := mp.Meter("test")
	counter, err := meter.Int64Counter(testCounter)
	require.NoError(t, err)
	histogram, err := meter.Float64Histogram(testHistogram)
	require.NoError(t, err)

	ctx := context.Background()
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("fetch.mode", "cors")))
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("fetch.mode", "no-cors")))
	histogram.Record(ctx, 1.5, metric.WithAttributes(attribute.String("fetch.mode", "cors")))
	histogram.Record(ctx, 2.5, metric.WithAttributes(attribute.String("fetch.mode", "no-cors")))

	rm := mp.Collect(t)

	require.NotNil(t, FindMetric(rm, testCounter))
	assert.Nil(t, FindMetric(rm, nonExistentMetric))

	assert.Equal(t, int64(3), SumInt64(rm, testCounter))
	assert.Equal(t, int64(0), SumInt64(rm, nonExistentMetric))
	assert.Equal(t, int64(0), SumInt64(rm, testHistogram))

	count, err := GetMetricHistogramCount(rm, testHistogram)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	_, err = GetMetricHistogramCount(rm, testCounter)
	assert.Error(t, err)
	_, err = GetMetricHistogramCount(rm, nonExistentMetric)
	assert.Error(t, err)
}
