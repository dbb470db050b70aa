package fetch

import (
	"context"
	nethttp "net/http"
	"time"
)

// Fetcher is the transport primitive every fetch operation goes through.
// Implementations perform exactly one request per call.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string, opts Options) (*Response, error)

// Fetch calls f(ctx, url, opts).
func (f FetcherFunc) Fetch(ctx context.Context, url string, opts Options) (*Response, error) {
	return f(ctx, url, opts)
}

// Response is the raw outcome of a single request.
type Response struct {
	URL        string
	StatusCode int
	// Status is the reason phrase without the numeric code, e.g. "Unauthorized".
	Status  string
	Headers nethttp.Header
	Body    []byte
	// Opaque is set for cross-origin no-cors responses; status, headers and
	// body are hidden.
	Opaque bool
	Stats  Stats
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r != nil && IsSuccessStatus(r.StatusCode)
}

// ContentType returns the response Content-Type header.
func (r *Response) ContentType() string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// Stats contains request execution statistics
type Stats struct {
	ElapsedTime time.Duration
	Attempts    int
	CallCount   int64
}

// BasicAuth contains basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// RequestInterceptor is called before sending the request
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// ResponseInterceptor is called after receiving the response
type ResponseInterceptor func(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error

// Upstream is one candidate backend for AnyGetter.
type Upstream struct {
	URI     string
	Options Options
}
