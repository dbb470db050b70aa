package logger

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// contextKey is the type for context keys to avoid collisions
type contextKey string

const (
	// fetchStatsKey stores the per-operation fetch counters
	fetchStatsKey contextKey = "fetch_stats"
	// severityHookKey stores a callback for operation-level severity tracking
	severityHookKey contextKey = "severity_hook"
)

// fetchStats accumulates the requests issued under one context.
type fetchStats struct {
	requests atomic.Int64
	retries  atomic.Int64
	elapsed  atomic.Int64
}

// WithFetchCounter returns a context that counts the requests, retries and
// time spent fetching by every call made with it.
func WithFetchCounter(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, fetchStatsKey, &fetchStats{})
}

func statsFrom(ctx context.Context) *fetchStats {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(fetchStatsKey).(*fetchStats)
	return s
}

// IncrementFetchCounter records one request sent.
func IncrementFetchCounter(ctx context.Context) {
	if s := statsFrom(ctx); s != nil {
		s.requests.Add(1)
	}
}

// GetFetchCounter returns the number of requests sent under ctx.
func GetFetchCounter(ctx context.Context) int64 {
	if s := statsFrom(ctx); s != nil {
		return s.requests.Load()
	}
	return 0
}

// IncrementRetryCounter records one failed attempt followed by a retry.
func IncrementRetryCounter(ctx context.Context) {
	if s := statsFrom(ctx); s != nil {
		s.retries.Add(1)
	}
}

// GetRetryCounter returns the number of retries under ctx.
func GetRetryCounter(ctx context.Context) int64 {
	if s := statsFrom(ctx); s != nil {
		return s.retries.Load()
	}
	return 0
}

// AddFetchElapsed adds time spent waiting on the network, in nanoseconds.
func AddFetchElapsed(ctx context.Context, nanos int64) {
	if s := statsFrom(ctx); s != nil {
		s.elapsed.Add(nanos)
	}
}

// GetFetchElapsed returns the accumulated network time in nanoseconds.
func GetFetchElapsed(ctx context.Context) int64 {
	if s := statsFrom(ctx); s != nil {
		return s.elapsed.Load()
	}
	return 0
}

// WithSeverityHook attaches a hook that observes every WARN or ERROR entry
// logged through a logger bound to the context.
func WithSeverityHook(ctx context.Context, hook func(zerolog.Level)) context.Context {
	if ctx == nil || hook == nil {
		return ctx
	}
	return context.WithValue(ctx, severityHookKey, hook)
}

func severityHookFromContext(ctx context.Context) func(zerolog.Level) {
	if ctx == nil {
		return nil
	}
	if hook, ok := ctx.Value(severityHookKey).(func(zerolog.Level)); ok {
		return hook
	}
	return nil
}
