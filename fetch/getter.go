package fetch

import (
	"context"
	nethttp "net/http"
)

// GetterOption configures a Getter.
type GetterOption func(*Getter)

// WithAutorun controls whether NewGetter starts the first call. Enabled by default.
func WithAutorun(enabled bool) GetterOption {
	return func(g *Getter) { g.autorun = enabled }
}

// WithFetcher overrides the transport for this getter only. Close waits for
// a running Fetch, so f should return once its context is cancelled.
func WithFetcher(f Fetcher) GetterOption {
	return func(g *Getter) {
		if f != nil {
			g.fetcher = f
		}
	}
}

// WithRequestOptions sets the caller options merged over the client defaults.
func WithRequestOptions(opts Options) GetterOption {
	return func(g *Getter) { g.opts = opts }
}

// WithRetryOverride pins a retry configuration instead of reading the
// client's current one at the start of each call.
func WithRetryOverride(cfg RetryConfig) GetterOption {
	return func(g *Getter) { g.retry = &cfg }
}

// WithOnChange registers a listener called after every state change.
// Listeners run on the goroutine that changed the state and must not block.
func WithOnChange(fn func(Snapshot)) GetterOption {
	return func(g *Getter) { g.onChange = fn }
}

// Getter is a stateful GET bound to one URL. Each Get starts a new logical
// call that supersedes the previous one; results of superseded calls are
// discarded.
type Getter struct {
	client   *Client
	url      string
	opts     Options
	fetcher  Fetcher
	retry    *RetryConfig
	autorun  bool
	onChange func(Snapshot)
	lc       lifecycle[State]
}

// NewGetter binds a getter to url. Unless autorun is disabled the first call
// starts before NewGetter returns.
func NewGetter(client *Client, url string, options ...GetterOption) (*Getter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if url == "" {
		return nil, NewValidationError("URL cannot be empty", "url")
	}

	g := &Getter{
		client:  client,
		url:     url,
		fetcher: client.fetcher,
		autorun: true,
	}
	for _, opt := range options {
		opt(g)
	}
	if err := client.requestOptions(nethttp.MethodGet, g.opts).Validate(); err != nil {
		return nil, err
	}

	g.lc.state = Idle()
	if g.onChange != nil {
		fn := g.onChange
		g.lc.onChange = func(s State) { fn(s.Snapshot()) }
	}

	if g.autorun {
		g.Get()
	}
	return g, nil
}

// URL returns the bound URL.
func (g *Getter) URL() string { return g.url }

// Get starts a new logical call and returns immediately. Any call still in
// flight becomes stale. It is a no-op after Close.
func (g *Getter) Get() {
	ctx, gen, ok := g.lc.begin(Pending(1))
	if !ok {
		return
	}
	go g.run(ctx, gen)
}

func (g *Getter) run(ctx context.Context, gen uint64) {
	defer g.lc.inflight.Done()

	cfg := g.client.RetryConfig()
	if g.retry != nil {
		cfg = *g.retry
	}

	hooks := retryHooks{
		onAttempt: func(n int) {
			if n > 1 {
				g.lc.update(gen, Pending(n))
			}
		},
		beforeRetry: func(n int) {
			g.lc.update(gen, Retrying(n))
		},
	}

	resp, err := g.client.get(ctx, g.fetcher, g.url, g.opts, cfg, hooks)
	if err != nil {
		g.lc.finish(gen, Failed(errorFrom(err), cfg.Attempts()))
		return
	}

	failures := resp.Stats.Attempts - 1
	out := Resolve(resp)
	if out.Error != nil {
		g.lc.finish(gen, Failed(out.Error, failures))
		return
	}
	g.lc.finish(gen, Succeeded(*out.Response, failures))
}

// Cancel makes the current call stale. The state keeps its last value.
func (g *Getter) Cancel() { g.lc.stop(false) }

// Close cancels the current call and disables the getter. It waits for the
// background goroutine to return, which includes a Fetch that ignores its
// context.
func (g *Getter) Close() {
	g.lc.stop(true)
	g.lc.inflight.Wait()
}

// State returns the current state.
func (g *Getter) State() State { return g.lc.snapshot() }

// Snapshot returns the consumer view of the current state.
func (g *Getter) Snapshot() Snapshot { return g.lc.snapshot().Snapshot() }

// Wait blocks until the current call reaches a terminal state, is cancelled,
// or ctx is done.
func (g *Getter) Wait(ctx context.Context) error { return g.lc.wait(ctx) }
