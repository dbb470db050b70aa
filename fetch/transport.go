package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the default per-attempt timeout
	DefaultTimeout = 30 * time.Second

	headerOrigin           = "Origin"
	headerAllowOrigin      = "Access-Control-Allow-Origin"
	headerAllowCredentials = "Access-Control-Allow-Credentials"
	headerAuthorization    = "Authorization"
	headerCookie           = "Cookie"
	headerContentType      = "Content-Type"
)

// maxOpaqueDrainBytes bounds how much of an opaque body is drained before close.
const maxOpaqueDrainBytes int64 = 64 << 10

var errRedirectRejected = errors.New("redirect rejected by request options")

// TransportConfig configures the default HTTP transport.
type TransportConfig struct {
	// Timeout bounds a single attempt. Zero means DefaultTimeout, negative disables it.
	Timeout time.Duration
	// Origin is the page origin the fetcher acts for, e.g. "https://dashboard.example.com".
	// Empty means every request is treated as same-origin.
	Origin string
	// BasicAuth is attached when credentials are allowed.
	BasicAuth *BasicAuth
	// Jar stores cookies sent when credentials are allowed.
	Jar nethttp.CookieJar
	// DefaultHeaders are applied before per-request headers.
	DefaultHeaders       map[string]string
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	// HTTPClient overrides the underlying client. Its Jar and CheckRedirect are ignored.
	HTTPClient *nethttp.Client
	// Transport overrides the round tripper of the underlying client.
	Transport nethttp.RoundTripper
}

// HTTPFetcher is the default Fetcher, built on net/http. It emulates the
// credential, mode and redirect semantics of a browser fetch on behalf of
// the configured origin.
type HTTPFetcher struct {
	httpClient           *nethttp.Client
	origin               string // normalized, for comparisons
	originHeader         string // as sent in the Origin header
	timeout              time.Duration
	basicAuth            *BasicAuth
	jar                  nethttp.CookieJar
	defaultHeaders       map[string]string
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
}

// Ensure HTTPFetcher implements the interface
var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates the default transport. It returns a validation error
// when the origin cannot be parsed.
func NewHTTPFetcher(cfg TransportConfig) (*HTTPFetcher, error) {
	var origin, originHeader string
	if cfg.Origin != "" {
		u, err := url.Parse(cfg.Origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, NewValidationError("origin must be an absolute URL", "origin")
		}
		origin = originOf(u)
		originHeader = strings.ToLower(u.Scheme) + "://" + u.Host
	}

	var hc nethttp.Client
	if cfg.HTTPClient != nil {
		hc = *cfg.HTTPClient
	}
	hc.Jar = nil
	hc.CheckRedirect = nil
	hc.Timeout = 0
	if cfg.Transport != nil {
		hc.Transport = cfg.Transport
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	headers := make(map[string]string, len(cfg.DefaultHeaders))
	for k, v := range cfg.DefaultHeaders {
		headers[k] = v
	}

	return &HTTPFetcher{
		httpClient:           &hc,
		origin:               origin,
		originHeader:         originHeader,
		timeout:              timeout,
		basicAuth:            cfg.BasicAuth,
		jar:                  cfg.Jar,
		defaultHeaders:       headers,
		requestInterceptors:  cfg.RequestInterceptors,
		responseInterceptors: cfg.ResponseInterceptors,
	}, nil
}

// Fetch performs one request.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if rawURL == "" {
		return nil, NewValidationError("URL cannot be empty", "url")
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid URL %q", rawURL), "url")
	}

	crossOrigin := !f.sameOrigin(target)
	if crossOrigin && opts.Mode == ModeSameOrigin {
		return nil, NewNetworkError(fmt.Sprintf("mode same-origin rejects cross-origin request to %s", originOf(target)), nil)
	}
	withCredentials := f.credentialsAllowed(opts.Credentials, crossOrigin)

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	httpReq, err := f.buildRequest(ctx, target, opts, crossOrigin, withCredentials)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := f.clientFor(opts.Redirect).Do(httpReq)
	if err != nil {
		switch {
		case errors.Is(err, errRedirectRejected):
			return nil, NewNetworkError("redirect not allowed", err)
		case isTimeout(err):
			return nil, NewTimeoutError("request timeout", f.timeout, err)
		default:
			return nil, NewNetworkError("request execution failed", err)
		}
	}
	defer httpResp.Body.Close()

	return f.buildResponse(ctx, start, httpReq, httpResp, opts, crossOrigin, withCredentials)
}

// buildRequest constructs an *http.Request, applies headers/credentials, and runs request interceptors.
func (f *HTTPFetcher) buildRequest(ctx context.Context, target *url.URL, opts Options, crossOrigin, withCredentials bool) (*nethttp.Request, error) {
	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, opts.method(), target.String(), body)
	if err != nil {
		return nil, NewNetworkError("failed to create HTTP request", err)
	}

	for key, value := range f.defaultHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range opts.Headers {
		httpReq.Header.Set(key, value)
	}
	if httpReq.Header.Get(headerContentType) == "" && opts.Body != nil {
		httpReq.Header.Set(headerContentType, jsonContentType)
	}

	if crossOrigin && opts.Mode != ModeNoCORS {
		httpReq.Header.Set(headerOrigin, f.originHeader)
	}

	if withCredentials {
		if f.basicAuth != nil && httpReq.Header.Get(headerAuthorization) == "" {
			httpReq.SetBasicAuth(f.basicAuth.Username, f.basicAuth.Password)
		}
		if f.jar != nil {
			for _, c := range f.jar.Cookies(target) {
				httpReq.AddCookie(c)
			}
		}
	} else {
		httpReq.Header.Del(headerAuthorization)
		httpReq.Header.Del(headerCookie)
	}

	for _, interceptor := range f.requestInterceptors {
		if err := interceptor(ctx, httpReq); err != nil {
			return nil, NewInterceptorError("request interceptor failed", "request", err)
		}
	}
	return httpReq, nil
}

// buildResponse runs response interceptors, applies the cross-origin rules, reads body, and builds a Response.
func (f *HTTPFetcher) buildResponse(ctx context.Context, start time.Time, httpReq *nethttp.Request, httpResp *nethttp.Response, opts Options, crossOrigin, withCredentials bool) (*Response, error) {
	for _, interceptor := range f.responseInterceptors {
		if err := interceptor(ctx, httpReq, httpResp); err != nil {
			return nil, NewInterceptorError("response interceptor failed", "response", err)
		}
	}

	finalURL := httpReq.URL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL
	}

	if withCredentials && f.jar != nil {
		if cookies := httpResp.Cookies(); len(cookies) > 0 {
			f.jar.SetCookies(finalURL, cookies)
		}
	}

	if crossOrigin {
		if opts.Mode == ModeNoCORS {
			_, _ = io.CopyN(io.Discard, httpResp.Body, maxOpaqueDrainBytes)
			return &Response{
				URL:     finalURL.String(),
				Headers: nethttp.Header{},
				Opaque:  true,
				Stats:   Stats{ElapsedTime: time.Since(start)},
			}, nil
		}
		if err := f.checkCORS(httpResp, withCredentials); err != nil {
			return nil, err
		}
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err)
	}

	return &Response{
		URL:        finalURL.String(),
		StatusCode: httpResp.StatusCode,
		Status:     statusText(httpResp),
		Headers:    httpResp.Header,
		Body:       respBody,
		Stats:      Stats{ElapsedTime: time.Since(start)},
	}, nil
}

// checkCORS rejects cross-origin responses that do not allow the origin.
func (f *HTTPFetcher) checkCORS(resp *nethttp.Response, withCredentials bool) error {
	allowed := strings.TrimSpace(resp.Header.Get(headerAllowOrigin))
	switch {
	case allowed == "*" && !withCredentials:
	case allowed != "*" && allowed != "" && sameOriginString(allowed, f.origin):
	default:
		return NewNetworkError(fmt.Sprintf("CORS check failed: origin %s not allowed", f.originHeader), nil)
	}
	if withCredentials && !strings.EqualFold(resp.Header.Get(headerAllowCredentials), "true") {
		return NewNetworkError("CORS check failed: credentials not allowed", nil)
	}
	return nil
}

func (f *HTTPFetcher) clientFor(r Redirect) *nethttp.Client {
	c := *f.httpClient
	switch r {
	case RedirectError:
		c.CheckRedirect = func(*nethttp.Request, []*nethttp.Request) error { return errRedirectRejected }
	case RedirectManual:
		c.CheckRedirect = func(*nethttp.Request, []*nethttp.Request) error { return nethttp.ErrUseLastResponse }
	}
	return &c
}

func (f *HTTPFetcher) sameOrigin(target *url.URL) bool {
	if f.origin == "" || target.Host == "" {
		return true
	}
	return originOf(target) == f.origin
}

func (f *HTTPFetcher) credentialsAllowed(c Credentials, crossOrigin bool) bool {
	switch c {
	case CredentialsOmit:
		return false
	case CredentialsSameOrigin:
		return !crossOrigin
	default:
		return true
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// originOf renders scheme://host:port with the default port made explicit.
func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}

func sameOriginString(raw, origin string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return originOf(u) == origin
}

// statusText strips the numeric code from resp.Status.
func statusText(resp *nethttp.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = nethttp.StatusText(resp.StatusCode)
	}
	return text
}
