package fetch

import (
	"context"
	"fmt"
	nethttp "net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/gaborage/upfetch/logger"
	reqtrace "github.com/gaborage/upfetch/trace"
)

const (
	instrumentationName = "github.com/gaborage/upfetch/fetch"

	spanGet    = "fetch.get"
	spanDelete = "fetch.delete"
	spanDo     = "fetch.do"
)

// Client runs fetch operations over a Fetcher with the retry policy,
// logging and telemetry shared by every caller.
type Client struct {
	fetcher   Fetcher
	logger    logger.Logger
	retry     atomic.Pointer[RetryConfig]
	defaults  Options
	limiter   *rate.Limiter
	coalesce  bool
	tracer    trace.Tracer
	metrics   *clientMetrics
	callCount atomic.Int64

	group    singleflight.Group
	flightMu sync.Mutex
	flights  map[string]*flight
}

// NewClient creates a client over the default HTTP transport with default configuration
func NewClient(log logger.Logger) *Client {
	c, err := NewBuilder(log).Build()
	if err != nil {
		// The default configuration has no origin to parse.
		panic(err)
	}
	return c
}

// Builder provides a fluent interface for configuring the client
type Builder struct {
	transport      TransportConfig
	fetcher        Fetcher
	retry          RetryConfig
	defaults       Options
	limit          rate.Limit
	burst          int
	coalesce       bool
	requestIDHdr   string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	logger         logger.Logger
}

// NewBuilder creates a new client builder
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.New("disabled", false)
	}
	return &Builder{
		transport: TransportConfig{
			Timeout:        DefaultTimeout,
			DefaultHeaders: make(map[string]string),
		},
		retry:        DefaultRetryConfig(),
		defaults:     DefaultOptions(),
		requestIDHdr: reqtrace.HeaderXRequestID,
		logger:       log,
	}
}

// WithTimeout sets the per-attempt timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.transport.Timeout = timeout
	return b
}

// WithRetries sets the retry count and backoff bounds
func (b *Builder) WithRetries(retries int, minTimeout, maxTimeout time.Duration) *Builder {
	b.retry = RetryConfig{Retries: retries, MinTimeout: minTimeout, MaxTimeout: maxTimeout}
	return b
}

// WithRetryConfig sets the retry configuration
func (b *Builder) WithRetryConfig(cfg RetryConfig) *Builder {
	b.retry = cfg
	return b
}

// WithBasicAuth sets basic authentication credentials sent when credentials are allowed
func (b *Builder) WithBasicAuth(username, password string) *Builder {
	b.transport.BasicAuth = &BasicAuth{
		Username: username,
		Password: password,
	}
	return b
}

// WithCookieJar sets the jar used for credentialed requests
func (b *Builder) WithCookieJar(jar nethttp.CookieJar) *Builder {
	b.transport.Jar = jar
	return b
}

// WithOrigin sets the page origin requests are made on behalf of
func (b *Builder) WithOrigin(origin string) *Builder {
	b.transport.Origin = origin
	return b
}

// WithDefaultHeader adds a default header that will be sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.transport.DefaultHeaders[key] = value
	return b
}

// WithDefaultOptions overlays opts on the built-in request defaults
func (b *Builder) WithDefaultOptions(opts Options) *Builder {
	b.defaults = b.defaults.Merge(opts)
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.transport.RequestInterceptors = append(b.transport.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor adds a response interceptor
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.transport.ResponseInterceptors = append(b.transport.ResponseInterceptors, interceptor)
	return b
}

// WithHTTPClient sets the underlying net/http client
func (b *Builder) WithHTTPClient(hc *nethttp.Client) *Builder {
	b.transport.HTTPClient = hc
	return b
}

// WithTransport sets the round tripper used by the default transport
func (b *Builder) WithTransport(rt nethttp.RoundTripper) *Builder {
	b.transport.Transport = rt
	return b
}

// WithFetcher replaces the default HTTP transport entirely. Close on the
// stateful types waits for the running Fetch, so f should return once its
// context is cancelled.
func (b *Builder) WithFetcher(f Fetcher) *Builder {
	b.fetcher = f
	return b
}

// WithRequestIDHeader sets the header carrying the per-call request ID.
// An empty value keeps the default.
func (b *Builder) WithRequestIDHeader(header string) *Builder {
	if header != "" {
		b.requestIDHdr = header
	}
	return b
}

// WithRateLimit throttles attempts to limit per second with the given burst.
// A non-positive limit disables throttling.
func (b *Builder) WithRateLimit(limit rate.Limit, burst int) *Builder {
	b.limit = limit
	b.burst = burst
	return b
}

// WithCoalescing shares one in-flight GET among concurrent calls with the
// same URL, merged options and retry configuration. Each caller still gets
// its own copy of the response, may leave early through its own context,
// and sees every beforeRetry callback of the shared call in order.
func (b *Builder) WithCoalescing(enabled bool) *Builder {
	b.coalesce = enabled
	return b
}

// WithTracerProvider sets the provider used for fetch spans
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithMeterProvider sets the provider used for fetch metrics
func (b *Builder) WithMeterProvider(mp metric.MeterProvider) *Builder {
	b.meterProvider = mp
	return b
}

// Build creates the client with the configured options
func (b *Builder) Build() (*Client, error) {
	if err := b.defaults.Validate(); err != nil {
		return nil, err
	}

	fetcher := b.fetcher
	if fetcher == nil {
		tc := b.transport
		tc.RequestInterceptors = append([]RequestInterceptor{NewRequestIDInterceptor(b.requestIDHdr)}, tc.RequestInterceptors...)
		hf, err := NewHTTPFetcher(tc)
		if err != nil {
			return nil, err
		}
		fetcher = hf
	}

	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := b.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	c := &Client{
		fetcher:  fetcher,
		logger:   b.logger,
		defaults: b.defaults,
		coalesce: b.coalesce,
		tracer:   tp.Tracer(instrumentationName),
		metrics:  newClientMetrics(mp.Meter(instrumentationName)),
	}
	if b.limit > 0 {
		burst := b.burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(b.limit, burst)
	}
	c.SetRetryConfig(b.retry)
	return c, nil
}

// RetryConfig returns the retry configuration currently in effect.
func (c *Client) RetryConfig() RetryConfig {
	if cfg := c.retry.Load(); cfg != nil {
		return *cfg
	}
	return DefaultRetryConfig()
}

// SetRetryConfig replaces the retry configuration. Calls already running keep
// the configuration they started with.
func (c *Client) SetRetryConfig(cfg RetryConfig) {
	c.retry.Store(&cfg)
}

// Fetcher returns the transport the client sends requests through.
func (c *Client) Fetcher() Fetcher {
	return c.fetcher
}

// retryHooks observe the progress of one retry loop.
type retryHooks struct {
	// onAttempt runs right before attempt n is sent.
	onAttempt func(n int)
	// beforeRetry runs after failed attempt n when another attempt follows.
	beforeRetry func(n int)
}

// Get performs a GET with retries. Every attempt but the last uses the
// merged request mode; the last one is sent as no-cors. beforeRetry, when
// set, is called with the number of each failed attempt that is followed by
// a retry. HTTP error statuses are returned as responses, not errors.
func (c *Client) Get(ctx context.Context, url string, opts Options, beforeRetry func(attempt int)) (*Response, error) {
	return c.GetWithRetry(ctx, url, opts, c.RetryConfig(), beforeRetry)
}

// GetWithRetry is Get with an explicit retry configuration for this call.
func (c *Client) GetWithRetry(ctx context.Context, url string, opts Options, cfg RetryConfig, beforeRetry func(attempt int)) (*Response, error) {
	if !c.coalesce {
		return c.get(ctx, c.fetcher, url, opts, cfg, retryHooks{beforeRetry: beforeRetry})
	}
	return c.coalescedGet(ctx, url, opts, cfg, beforeRetry)
}

// Delete performs a single DELETE attempt.
func (c *Client) Delete(ctx context.Context, url string, opts Options) (*Response, error) {
	return c.once(ctx, c.fetcher, spanDelete, url, c.requestOptions(nethttp.MethodDelete, opts))
}

// Do performs a single attempt with the caller's method, GET by default.
func (c *Client) Do(ctx context.Context, url string, opts Options) (*Response, error) {
	return c.once(ctx, c.fetcher, spanDo, url, c.requestOptions(nethttp.MethodGet, opts))
}

// requestOptions layers built-in defaults, client defaults and caller options.
func (c *Client) requestOptions(method string, opts Options) Options {
	merged := c.defaults
	if merged.Method == "" {
		merged.Method = method
	}
	return merged.Merge(opts)
}

func (c *Client) get(ctx context.Context, f Fetcher, url string, opts Options, cfg RetryConfig, hooks retryHooks) (*Response, error) {
	merged := c.requestOptions(nethttp.MethodGet, opts)
	attempts := cfg.Attempts()

	ctx = withRequestID(ctx)
	ctx, span := c.startSpan(ctx, spanGet, url, merged)
	defer span.End()
	span.SetAttributes(attribute.Int("fetch.max_attempts", attempts))

	start := time.Now()
	callCount := c.callCount.Add(1)

	var lastErr error
	for n := 1; n <= attempts; n++ {
		attemptOpts := merged
		if n == attempts {
			attemptOpts.Mode = ModeNoCORS
		}
		if hooks.onAttempt != nil {
			hooks.onAttempt(n)
		}

		resp, err := c.attempt(ctx, f, span, url, attemptOpts, n)
		if err == nil {
			resp.Stats = Stats{ElapsedTime: time.Since(start), Attempts: n, CallCount: callCount}
			c.settle(ctx, span, resp)
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, c.fail(ctx, span, url, context.Cause(ctx))
		}
		if n == attempts {
			break
		}

		c.metrics.recordRetry(ctx, merged.Method)
		logger.IncrementRetryCounter(ctx)
		c.logger.WithContext(ctx).Warn().
			Err(err).
			Str("url", url).
			Int("attempt", n).
			Int("max_attempts", attempts).
			Msg("fetch attempt failed, retrying")

		if hooks.beforeRetry != nil {
			hooks.beforeRetry(n)
		}
		if err := sleep(ctx, cfg.Delay(n)); err != nil {
			return nil, c.fail(ctx, span, url, err)
		}
	}

	return nil, c.fail(ctx, span, url, lastErr)
}

func (c *Client) once(ctx context.Context, f Fetcher, spanName, url string, opts Options) (*Response, error) {
	ctx = withRequestID(ctx)
	ctx, span := c.startSpan(ctx, spanName, url, opts)
	defer span.End()

	start := time.Now()
	callCount := c.callCount.Add(1)

	resp, err := c.attempt(ctx, f, span, url, opts, 1)
	if err != nil {
		return nil, c.fail(ctx, span, url, err)
	}
	resp.Stats = Stats{ElapsedTime: time.Since(start), Attempts: 1, CallCount: callCount}
	c.settle(ctx, span, resp)
	return resp, nil
}

// attempt sends one request through f.
func (c *Client) attempt(ctx context.Context, f Fetcher, span trace.Span, url string, opts Options, n int) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewNetworkError("rate limiter wait failed", err)
		}
	}

	span.AddEvent("attempt", trace.WithAttributes(
		attribute.Int("fetch.attempt", n),
		attribute.String("fetch.mode", string(opts.Mode)),
	))
	logger.IncrementFetchCounter(ctx)
	c.logRequest(ctx, url, opts, n)

	start := time.Now()
	resp, err := recoverFetch(func() (*Response, error) {
		return f.Fetch(ctx, url, opts)
	})
	if err == nil && resp == nil {
		err = NewNetworkError("fetcher returned no response", nil)
	}
	elapsed := time.Since(start)
	logger.AddFetchElapsed(ctx, elapsed.Nanoseconds())
	c.metrics.recordAttempt(ctx, opts, err, elapsed)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) fail(ctx context.Context, span trace.Span, url string, err error) error {
	c.metrics.recordFailure(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.WithContext(ctx).Error().
		Err(err).
		Str("url", url).
		Msg("fetch failed")
	return err
}

func (c *Client) startSpan(ctx context.Context, name, url string, opts Options) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", opts.Method),
			attribute.String("url.full", url),
			attribute.String("fetch.credentials", string(opts.Credentials)),
		),
	)
}

// logRequest logs the outgoing request
func (c *Client) logRequest(ctx context.Context, url string, opts Options, attempt int) {
	logEvent := c.logger.WithContext(ctx).Info().
		Str("direction", "outbound").
		Str("method", opts.Method).
		Str("url", url).
		Str("mode", string(opts.Mode)).
		Int("attempt", attempt)

	if len(opts.Headers) > 0 {
		logEvent.Interface("headers", opts.Headers)
	}

	logEvent.Msg("fetch request")
}

// settle records a response that reached the caller. Error statuses mark the
// span as failed and log at warn; opaque responses carry no status to judge.
func (c *Client) settle(ctx context.Context, span trace.Span, resp *Response) {
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	log := c.logger.WithContext(ctx)
	event := log.Info()
	if err := AsHTTPError(resp); err != nil && !resp.Opaque {
		span.SetStatus(codes.Error, err.Error())
		event = log.Warn().Err(err)
	}

	event.
		Str("direction", "inbound").
		Str("url", resp.URL).
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.ElapsedTime).
		Int("attempts", resp.Stats.Attempts).
		Int64("call_count", resp.Stats.CallCount).
		Msg("fetch response")
}

// withRequestID pins one request ID to the logical call so every attempt
// carries the same value.
func withRequestID(ctx context.Context) context.Context {
	if _, ok := reqtrace.RequestIDFromContext(ctx); ok {
		return ctx
	}
	return reqtrace.WithRequestID(ctx, reqtrace.EnsureRequestID(ctx))
}

func coalesceKey(url string, opts Options, cfg RetryConfig) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s %s %s retries=%d min=%s max=%s",
		opts.Method, url, opts.Mode, opts.Credentials, opts.Redirect,
		cfg.Retries, cfg.MinTimeout, cfg.MaxTimeout)
	keys := make([]string, 0, len(opts.Headers))
	for k := range opts.Headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%s", k, opts.Headers[k])
	}
	return sb.String()
}

// NewRequestIDInterceptor creates an interceptor that copies the request ID
// from the context into header, and the W3C traceparent, unless the request
// already carries them.
func NewRequestIDInterceptor(header string) RequestInterceptor {
	if header == "" {
		header = reqtrace.HeaderXRequestID
	}
	return func(ctx context.Context, req *nethttp.Request) error {
		if req.Header.Get(header) == "" {
			req.Header.Set(header, reqtrace.EnsureRequestID(ctx))
		}
		if req.Header.Get(reqtrace.HeaderTraceParent) == "" {
			req.Header.Set(reqtrace.HeaderTraceParent, reqtrace.TraceParent(ctx))
		}
		return nil
	}
}
