package fetch

import (
	"context"
	nethttp "net/http"
	"slices"
	"sync"
)

// flight is one shared GET and the callers waiting on it. The flights map
// and the singleflight group always agree on which flight owns a key: both
// are changed together under Client.flightMu.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int // guarded by Client.flightMu

	mu     sync.Mutex
	fired  []int
	hooks  map[int]func(int)
	nextID int
}

// subscribe registers a caller's beforeRetry, replaying the retries the
// shared call already went through so every caller sees 1..n in order.
func (f *flight) subscribe(hook func(int)) int {
	if hook == nil {
		return -1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.fired {
		hook(n)
	}
	id := f.nextID
	f.nextID++
	f.hooks[id] = hook
	return id
}

func (f *flight) unsubscribe(id int) {
	if id < 0 {
		return
	}
	f.mu.Lock()
	delete(f.hooks, id)
	f.mu.Unlock()
}

// beforeRetry fans retry n out to every subscribed caller, in subscription order.
func (f *flight) beforeRetry(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, n)
	ids := make([]int, 0, len(f.hooks))
	for id := range f.hooks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		f.hooks[id](n)
	}
}

// coalescedGet joins or starts the shared call for this request. The shared
// call runs detached from any single caller's cancellation and is cancelled
// only when every caller has left.
func (c *Client) coalescedGet(ctx context.Context, url string, opts Options, cfg RetryConfig, beforeRetry func(int)) (*Response, error) {
	key := coalesceKey(url, c.requestOptions(nethttp.MethodGet, opts), cfg)

	c.flightMu.Lock()
	if c.flights == nil {
		c.flights = make(map[string]*flight)
	}
	f, ok := c.flights[key]
	if !ok {
		shared, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: shared, cancel: cancel, hooks: make(map[int]func(int))}
		c.flights[key] = f
	}
	f.waiters++
	ch := c.group.DoChan(key, func() (any, error) {
		defer c.retire(key, f)
		return c.get(f.ctx, c.fetcher, url, opts, cfg, retryHooks{beforeRetry: f.beforeRetry})
	})
	c.flightMu.Unlock()

	id := f.subscribe(beforeRetry)
	defer c.leave(key, f, id)

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response).clone(), nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// retire stops new callers from joining f once its call has finished.
func (c *Client) retire(key string, f *flight) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	if c.flights[key] == f {
		delete(c.flights, key)
		c.group.Forget(key)
	}
}

// leave drops one caller. The last one out cancels the shared call.
func (c *Client) leave(key string, f *flight, id int) {
	f.unsubscribe(id)

	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	if c.flights[key] == f {
		delete(c.flights, key)
		c.group.Forget(key)
	}
	f.cancel()
}

// clone gives each coalesced caller its own response.
func (r *Response) clone() *Response {
	out := *r
	out.Headers = r.Headers.Clone()
	out.Body = slices.Clone(r.Body)
	return &out
}
