package fetch

import (
	"context"
	nethttp "net/http"
)

// DeleteSnapshot is the consumer view of a Deleter.
type DeleteSnapshot struct {
	Response   *Body
	Error      *ErrorValue
	IsDeleting bool
}

// DeleterOption configures a Deleter.
type DeleterOption func(*Deleter)

// WithDeleteFetcher overrides the transport for this deleter only. Close
// waits for a running Fetch, so f should return once its context is cancelled.
func WithDeleteFetcher(f Fetcher) DeleterOption {
	return func(d *Deleter) {
		if f != nil {
			d.fetcher = f
		}
	}
}

// WithDeleteAutorun controls whether NewDeleter sends the request right away.
// Enabled by default.
func WithDeleteAutorun(enabled bool) DeleterOption {
	return func(d *Deleter) { d.autorun = enabled }
}

// WithDeleteOptions sets the caller options merged over the client defaults.
func WithDeleteOptions(opts Options) DeleterOption {
	return func(d *Deleter) { d.opts = opts }
}

// WithDeleteOnChange registers a listener called after every state change.
func WithDeleteOnChange(fn func(DeleteSnapshot)) DeleterOption {
	return func(d *Deleter) { d.lc.onChange = fn }
}

// Deleter issues a single-attempt DELETE against one URL.
type Deleter struct {
	client  *Client
	url     string
	opts    Options
	fetcher Fetcher
	autorun bool
	lc      lifecycle[DeleteSnapshot]
}

// NewDeleter binds a deleter to url and, unless autorun is disabled, sends
// the request.
func NewDeleter(client *Client, url string, options ...DeleterOption) (*Deleter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if url == "" {
		return nil, NewValidationError("URL cannot be empty", "url")
	}

	d := &Deleter{
		client:  client,
		url:     url,
		fetcher: client.fetcher,
		autorun: true,
	}
	for _, opt := range options {
		opt(d)
	}
	if err := d.options().Validate(); err != nil {
		return nil, err
	}
	if d.autorun {
		d.Delete()
	}
	return d, nil
}

func (d *Deleter) options() Options {
	return d.client.requestOptions(nethttp.MethodDelete, d.opts)
}

// Delete sends the request in the background. A second Delete supersedes
// the first.
func (d *Deleter) Delete() {
	ctx, gen, ok := d.lc.begin(DeleteSnapshot{IsDeleting: true})
	if !ok {
		return
	}
	go d.run(ctx, gen)
}

func (d *Deleter) run(ctx context.Context, gen uint64) {
	defer d.lc.inflight.Done()

	resp, err := d.client.once(ctx, d.fetcher, spanDelete, d.url, d.options())
	if err != nil {
		d.lc.finish(gen, DeleteSnapshot{Error: errorFrom(err)})
		return
	}
	out := Resolve(resp)
	d.lc.finish(gen, DeleteSnapshot{Response: out.Response, Error: out.Error})
}

// Cancel makes the in-flight request stale.
func (d *Deleter) Cancel() { d.lc.stop(false) }

// Close cancels the in-flight request and disables the deleter.
func (d *Deleter) Close() {
	d.lc.stop(true)
	d.lc.inflight.Wait()
}

// Snapshot returns the current state.
func (d *Deleter) Snapshot() DeleteSnapshot { return d.lc.snapshot() }

// Wait blocks until the current request finishes, is cancelled, or ctx is done.
func (d *Deleter) Wait(ctx context.Context) error { return d.lc.wait(ctx) }
