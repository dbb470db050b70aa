package fetch

import (
	"context"
	nethttp "net/http"
	"slices"
	"sync"
)

const spanAny = "fetch.any"

// AnySnapshot is the consumer view of an AnyGetter.
type AnySnapshot struct {
	Response    *Body
	Error       *ErrorValue
	InProgress  bool
	ResponseURI string
}

// AnyOption configures an AnyGetter.
type AnyOption func(*AnyGetter)

// WithAnyAutorun controls whether NewAnyGetter starts scanning right away.
// Enabled by default.
func WithAnyAutorun(enabled bool) AnyOption {
	return func(a *AnyGetter) { a.autorun = enabled }
}

// WithAnyFetcher overrides the transport for this getter only. Close waits
// for a running Fetch, so f should return once its context is cancelled.
func WithAnyFetcher(f Fetcher) AnyOption {
	return func(a *AnyGetter) {
		if f != nil {
			a.fetcher = f
		}
	}
}

// WithAnyOnChange registers a listener called after every state change.
func WithAnyOnChange(fn func(AnySnapshot)) AnyOption {
	return func(a *AnyGetter) { a.lc.onChange = fn }
}

// AnyGetter queries redundant upstreams in priority order and keeps the
// first successful answer.
type AnyGetter struct {
	client  *Client
	fetcher Fetcher
	autorun bool

	mu        sync.Mutex
	upstreams []Upstream

	lc lifecycle[AnySnapshot]
}

// NewAnyGetter creates a getter over upstreams.
func NewAnyGetter(client *Client, upstreams []Upstream, options ...AnyOption) (*AnyGetter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	a := &AnyGetter{
		client:    client,
		fetcher:   client.fetcher,
		autorun:   true,
		upstreams: slices.Clone(upstreams),
	}
	for _, opt := range options {
		opt(a)
	}
	if err := validateUpstreams(upstreams); err != nil {
		return nil, err
	}
	if a.autorun {
		a.Fetch()
	}
	return a, nil
}

func validateUpstreams(upstreams []Upstream) error {
	for _, u := range upstreams {
		if u.URI == "" {
			return NewValidationError("upstream URI cannot be empty", "uri")
		}
		if err := u.Options.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Upstreams returns a copy of the candidate list.
func (a *AnyGetter) Upstreams() []Upstream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.upstreams)
}

// SetUpstreams replaces the candidate list and restarts the scan.
func (a *AnyGetter) SetUpstreams(upstreams []Upstream) error {
	if err := validateUpstreams(upstreams); err != nil {
		return err
	}
	a.mu.Lock()
	a.upstreams = slices.Clone(upstreams)
	a.mu.Unlock()
	a.Fetch()
	return nil
}

// Fetch starts a new scan over the current candidates. An empty list
// settles immediately in the idle state without touching the network.
func (a *AnyGetter) Fetch() {
	upstreams := a.Upstreams()
	ctx, gen, ok := a.lc.begin(AnySnapshot{InProgress: len(upstreams) > 0})
	if !ok {
		return
	}
	if len(upstreams) == 0 {
		a.lc.finish(gen, AnySnapshot{})
		a.lc.inflight.Done()
		return
	}
	go a.run(ctx, gen, upstreams)
}

func (a *AnyGetter) run(ctx context.Context, gen uint64, upstreams []Upstream) {
	defer a.lc.inflight.Done()

	var lastErr *ErrorValue
	for _, u := range upstreams {
		if ctx.Err() != nil {
			return
		}
		opts := a.client.requestOptions(nethttp.MethodGet, u.Options)
		resp, err := a.client.once(ctx, a.fetcher, spanAny, u.URI, opts)
		if err != nil {
			lastErr = errorFrom(err)
			continue
		}
		out := Resolve(resp)
		if out.Error != nil {
			lastErr = out.Error
			continue
		}
		a.lc.finish(gen, AnySnapshot{Response: out.Response, ResponseURI: u.URI})
		return
	}
	a.lc.finish(gen, AnySnapshot{Error: lastErr})
}

// Reset cancels any scan and returns to the idle state without fetching.
func (a *AnyGetter) Reset() { a.lc.reset(AnySnapshot{}) }

// Cancel makes the running scan stale.
func (a *AnyGetter) Cancel() { a.lc.stop(false) }

// Close cancels the running scan and disables the getter.
func (a *AnyGetter) Close() {
	a.lc.stop(true)
	a.lc.inflight.Wait()
}

// Snapshot returns the current state.
func (a *AnyGetter) Snapshot() AnySnapshot { return a.lc.snapshot() }

// Wait blocks until the running scan finishes, is cancelled, or ctx is done.
func (a *AnyGetter) Wait(ctx context.Context) error { return a.lc.wait(ctx) }
