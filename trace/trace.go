// Package trace carries request correlation identifiers through a context and
// onto outgoing fetch requests.
package trace

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// contextKey is the type for context keys to avoid collisions
type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	traceParentKey contextKey = "traceparent"

	// HeaderXRequestID is the header that carries the request ID upstream
	HeaderXRequestID = "X-Request-ID"
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = "traceparent"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID from context if present
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns the request ID from context or a fresh UUID.
func EnsureRequestID(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}

// WithTraceParent stores an inbound traceparent value to forward upstream.
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	return context.WithValue(ctx, traceParentKey, traceParent)
}

// ParentFromContext returns a stored traceparent if present
func ParentFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if tp, ok := ctx.Value(traceParentKey).(string); ok && tp != "" {
		return tp, true
	}
	return "", false
}

// TraceParent returns the traceparent header value for ctx. An active span
// wins over a stored value; with neither, a new random one is generated.
func TraceParent(ctx context.Context) string {
	if ctx != nil {
		if sc := oteltrace.SpanContextFromContext(ctx); sc.IsValid() {
			return formatTraceParent(sc.TraceID(), sc.SpanID(), sc.TraceFlags())
		}
	}
	if tp, ok := ParentFromContext(ctx); ok {
		return tp
	}
	return GenerateTraceParent()
}

// GenerateTraceParent creates a sampled W3C traceparent with random IDs.
// Format: version(2)-trace-id(32)-span-id(16)-flags(2)
func GenerateTraceParent() string {
	var traceID oteltrace.TraceID
	var spanID oteltrace.SpanID
	_, _ = crand.Read(traceID[:])
	_, _ = crand.Read(spanID[:])
	// All-zero IDs are invalid per W3C.
	if !traceID.IsValid() {
		traceID[len(traceID)-1] = 0x01
	}
	if !spanID.IsValid() {
		spanID[len(spanID)-1] = 0x01
	}
	return formatTraceParent(traceID, spanID, oteltrace.FlagsSampled)
}

func formatTraceParent(traceID oteltrace.TraceID, spanID oteltrace.SpanID, flags oteltrace.TraceFlags) string {
	return "00-" + traceID.String() + "-" + spanID.String() + "-" + hex.EncodeToString([]byte{byte(flags)})
}
