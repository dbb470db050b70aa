package fetch

import (
	"context"
	nethttp "net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrimary   = "https://am-0.example.com/api/v2/status"
	testSecondary = "https://am-1.example.com/api/v2/status"
	testTertiary  = "https://am-2.example.com/api/v2/status"
)

// routeFetcher answers per URL and records the order of requested URLs.
type routeFetcher struct {
	mu     sync.Mutex
	routes map[string]func(context.Context) (*Response, error)
	calls  []recordedCall
}

func newRouteFetcher(routes map[string]func(context.Context) (*Response, error)) *routeFetcher {
	return &routeFetcher{routes: routes}
}

func (r *routeFetcher) Fetch(ctx context.Context, url string, opts Options) (*Response, error) {
	r.mu.Lock()
	r.calls = append(r.calls, recordedCall{URL: url, Opts: opts})
	step, ok := r.routes[url]
	r.mu.Unlock()
	if !ok {
		return nil, errConnRefused
	}
	return step(ctx)
}

func (r *routeFetcher) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	urls := make([]string, len(r.calls))
	for i, c := range r.calls {
		urls[i] = c.URL
	}
	return urls
}

func (r *routeFetcher) Calls() []recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedCall(nil), r.calls...)
}

func upstreams(uris ...string) []Upstream {
	out := make([]Upstream, len(uris))
	for i, u := range uris {
		out[i] = Upstream{URI: u}
	}
	return out
}

func TestNewAnyGetterValidation(t *testing.T) {
	client := newTestClient(t, newRouteFetcher(nil), 0)

	_, err := NewAnyGetter(nil, upstreams(testPrimary))
	assert.ErrorIs(t, err, ErrNilClient)

	_, err = NewAnyGetter(client, []Upstream{{URI: ""}})
	assert.True(t, IsErrorType(err, ValidationError))

	_, err = NewAnyGetter(client, []Upstream{{URI: testPrimary, Options: Options{Credentials: "always"}}})
	assert.True(t, IsErrorType(err, ValidationError))
}

func TestAnyGetterFirstSuccessWins(t *testing.T) {
	f := newRouteFetcher(map[string]func(context.Context) (*Response, error){
		testPrimary:   respond(nethttp.StatusServiceUnavailable, "", ""),
		testSecondary: respond(nethttp.StatusOK, testJSONType, `{"cluster":{"status":"ready"}}`),
		testTertiary:  respond(nethttp.StatusOK, "", "unused"),
	})
	client := newTestClient(t, f, 5)

	a, err := NewAnyGetter(client, upstreams(testPrimary, testSecondary, testTertiary))
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Wait(waitCtx(t)))

	snap := a.Snapshot()
	assert.False(t, snap.InProgress)
	assert.Nil(t, snap.Error)
	assert.Equal(t, testSecondary, snap.ResponseURI)
	require.NotNil(t, snap.Response)
	assert.Equal(t, BodyJSON, snap.Response.Kind())
	assert.Equal(t, []string{testPrimary, testSecondary}, f.URLs())

	for _, c := range f.Calls() {
		assert.Equal(t, nethttp.MethodGet, c.Opts.Method)
		assert.Equal(t, ModeCORS, c.Opts.Mode)
		assert.Equal(t, CredentialsInclude, c.Opts.Credentials)
		assert.Equal(t, RedirectFollow, c.Opts.Redirect)
	}
}

func TestAnyGetterAllFail(t *testing.T) {
	f := newRouteFetcher(map[string]func(context.Context) (*Response, error){
		testPrimary:   respond(nethttp.StatusBadGateway, testTextType, "primary down"),
		testSecondary: respond(nethttp.StatusUnauthorized, "", ""),
	})
	client := newTestClient(t, f, 5)

	a, err := NewAnyGetter(client, upstreams(testPrimary, testSecondary))
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Wait(waitCtx(t)))

	snap := a.Snapshot()
	assert.False(t, snap.InProgress)
	assert.Nil(t, snap.Response)
	assert.Empty(t, snap.ResponseURI)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "401 Unauthorized", snap.Error.Message())
	assert.Equal(t, []string{testPrimary, testSecondary}, f.URLs())
}

func TestAnyGetterTransportErrorFallsThrough(t *testing.T) {
	f := newRouteFetcher(map[string]func(context.Context) (*Response, error){
		testSecondary: respond(nethttp.StatusOK, "", "ok"),
	})
	client := newTestClient(t, f, 5)

	a, err := NewAnyGetter(client, upstreams(testPrimary, testSecondary))
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Wait(waitCtx(t)))

	assert.Equal(t, testSecondary, a.Snapshot().ResponseURI)
	assert.Equal(t, []string{testPrimary, testSecondary}, f.URLs())
}

func TestAnyGetterEmptyList(t *testing.T) {
	f := newRouteFetcher(nil)
	client := newTestClient(t, f, 0)

	a, err := NewAnyGetter(client, nil)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Wait(waitCtx(t)))

	assert.Equal(t, AnySnapshot{}, a.Snapshot())
	assert.Empty(t, f.URLs())
}

func TestAnyGetterCandidateOptions(t *testing.T) {
	f := newRouteFetcher(map[string]func(context.Context) (*Response, error){
		testPrimary: respond(nethttp.StatusOK, "", "ok"),
	})
	client := newTestClient(t, f, 0)

	a, err := NewAnyGetter(client, []Upstream{{
		URI: testPrimary,
		Options: Options{
			Method:      nethttp.MethodHead,
			Credentials: CredentialsOmit,
			Headers:     map[string]string{"Authorization": "Bearer t"},
		},
	}})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Wait(waitCtx(t)))

	calls := f.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, nethttp.MethodHead, calls[0].Opts.Method)
	assert.Equal(t, CredentialsOmit, calls[0].Opts.Credentials)
	assert.Equal(t, ModeCORS, calls[0].Opts.Mode)
	assert.Equal(t, "Bearer t", calls[0].Opts.Headers["Authorization"])
}

func TestAnyGetterSetUpstreamsAndReset(t *testing.T) {
	f := newRouteFetcher(map[string]func(context.Context) (*Response, error){
		testPrimary:   respond(nethttp.StatusOK, "", "primary"),
		testSecondary: respond(nethttp.StatusOK, "", "secondary"),
	})
	client := newTestClient(t, f, 0)

	a, err := NewAnyGetter(client, upstreams(testPrimary), WithAnyAutorun(false))
	require.NoError(t, err)
	defer a.Close()
	assert.Empty(t, f.URLs())

	require.NoError(t, a.SetUpstreams(upstreams(testSecondary)))
	require.NoError(t, a.Wait(waitCtx(t)))
	assert.Equal(t, testSecondary, a.Snapshot().ResponseURI)
	assert.Equal(t, upstreams(testSecondary), a.Upstreams())

	a.Reset()
	assert.Equal(t, AnySnapshot{}, a.Snapshot())

	assert.Error(t, a.SetUpstreams([]Upstream{{URI: ""}}))
	assert.Equal(t, []string{testSecondary}, f.URLs())
}

func TestAnyGetterCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := newRouteFetcher(map[string]func(context.Context) (*Response, error){
		testPrimary:   block(release, respond(nethttp.StatusOK, "", "")),
		testSecondary: respond(nethttp.StatusOK, "", "secondary"),
	})
	client := newTestClient(t, f, 0)
	var mu sync.Mutex
	var changes []AnySnapshot

	a, err := NewAnyGetter(client, upstreams(testPrimary, testSecondary), WithAnyOnChange(func(s AnySnapshot) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, s)
	}))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(f.URLs()) == 1 }, testWaitTimeout, time.Millisecond)

	a.Cancel()
	a.Close()

	assert.True(t, a.Snapshot().InProgress)
	assert.Equal(t, []string{testPrimary}, f.URLs())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []AnySnapshot{{InProgress: true}}, changes)
}
