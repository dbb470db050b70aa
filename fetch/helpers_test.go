package fetch

import (
	"context"
	"errors"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gaborage/upfetch/logger"
)

// Test constants to avoid string duplication
const (
	testURL         = "https://alerts.example.com/api/v2/alerts"
	testOrigin      = "https://dashboard.example.com"
	testContentType = "Content-Type"
	testJSONType    = "application/json"
	testTextType    = "text/plain; charset=utf-8"
	testWaitTimeout = 5 * time.Second
)

var errConnRefused = errors.New("connection refused")

// createTestLogger creates a logger that discards output
func createTestLogger() logger.Logger {
	return logger.New("disabled", false)
}

// fastRetry keeps backoff waits out of tests.
func fastRetry(retries int) RetryConfig {
	return RetryConfig{Retries: retries}
}

func newTestClient(t *testing.T, f Fetcher, retries int) *Client {
	t.Helper()
	c, err := NewBuilder(createTestLogger()).
		WithFetcher(f).
		WithRetryConfig(fastRetry(retries)).
		Build()
	require.NoError(t, err)
	return c
}

func newIPv4TestServer(t *testing.T, handler nethttp.Handler) *httptest.Server {
	t.Helper()
	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: unable to bind IPv4 listener: %v", err)
		return &httptest.Server{}
	}

	server := &httptest.Server{
		Listener: listener,
		Config:   &nethttp.Server{Handler: handler},
	}
	server.Start()
	return server
}

type roundTripperFunc func(*nethttp.Request) (*nethttp.Response, error)

func (f roundTripperFunc) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	return f(req)
}

type recordedCall struct {
	URL  string
	Opts Options
}

// recorder is a scripted Fetcher. Each call consumes the next step; the last
// step repeats once the script is exhausted.
type recorder struct {
	mu    sync.Mutex
	steps []func(ctx context.Context) (*Response, error)
	calls []recordedCall
}

func newRecorder(steps ...func(ctx context.Context) (*Response, error)) *recorder {
	return &recorder{steps: steps}
}

func (r *recorder) Fetch(ctx context.Context, url string, opts Options) (*Response, error) {
	r.mu.Lock()
	n := len(r.calls)
	r.calls = append(r.calls, recordedCall{URL: url, Opts: opts})
	step := r.steps[min(n, len(r.steps)-1)]
	r.mu.Unlock()
	return step(ctx)
}

func (r *recorder) Calls() []recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedCall(nil), r.calls...)
}

func (r *recorder) Modes() []Mode {
	calls := r.Calls()
	modes := make([]Mode, len(calls))
	for i, c := range calls {
		modes[i] = c.Opts.Mode
	}
	return modes
}

func respond(status int, contentType, body string) func(context.Context) (*Response, error) {
	return func(context.Context) (*Response, error) {
		headers := nethttp.Header{}
		if contentType != "" {
			headers.Set(testContentType, contentType)
		}
		return &Response{
			URL:        testURL,
			StatusCode: status,
			Status:     nethttp.StatusText(status),
			Headers:    headers,
			Body:       []byte(body),
		}, nil
	}
}

func fail(err error) func(context.Context) (*Response, error) {
	return func(context.Context) (*Response, error) {
		return nil, err
	}
}

// block waits for release or cancellation of the call context.
func block(release <-chan struct{}, then func(context.Context) (*Response, error)) func(context.Context) (*Response, error) {
	return func(ctx context.Context) (*Response, error) {
		select {
		case <-release:
			return then(ctx)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testWaitTimeout)
	t.Cleanup(cancel)
	return ctx
}
