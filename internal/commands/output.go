package commands

import (
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/gaborage/upfetch/fetch"
)

// Result is the JSON document printed for a snapshot.
type Result struct {
	URL        string `json:"url,omitempty"`
	Phase      string `json:"phase,omitempty"`
	Response   any    `json:"response,omitempty"`
	Error      any    `json:"error,omitempty"`
	RetryCount int    `json:"retryCount,omitempty"`
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool { return r.Error != nil }

// Err returns ErrFetchFailed with the error text, or nil.
func (r Result) Err() error {
	if !r.Failed() {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrFetchFailed, r.Error)
}

func resultFromSnapshot(url string, s fetch.Snapshot) Result {
	return Result{
		URL:        url,
		Phase:      s.Phase.String(),
		Response:   bodyValue(s.Response),
		Error:      errorValue(s.Error),
		RetryCount: s.RetryCount,
	}
}

func resultFromDelete(url string, s fetch.DeleteSnapshot) Result {
	phase := fetch.PhaseSucceeded
	switch {
	case s.IsDeleting:
		phase = fetch.PhasePending
	case s.Error != nil:
		phase = fetch.PhaseFailed
	}
	return Result{
		URL:      url,
		Phase:    phase.String(),
		Response: bodyValue(s.Response),
		Error:    errorValue(s.Error),
	}
}

func resultFromAny(s fetch.AnySnapshot) Result {
	phase := fetch.PhaseSucceeded
	switch {
	case s.InProgress:
		phase = fetch.PhasePending
	case s.Error != nil:
		phase = fetch.PhaseFailed
	case s.Response == nil:
		phase = fetch.PhaseIdle
	}
	return Result{
		URL:      s.ResponseURI,
		Phase:    phase.String(),
		Response: bodyValue(s.Response),
		Error:    errorValue(s.Error),
	}
}

// bodyValue keeps JSON bodies structured and everything else as text.
func bodyValue(b *fetch.Body) any {
	if b == nil {
		return nil
	}
	if v, ok := b.JSON(); ok {
		return v
	}
	return b.Text()
}

func errorValue(e *fetch.ErrorValue) any {
	if e == nil {
		return nil
	}
	if v, ok := e.JSON(); ok {
		return v
	}
	return e.Message()
}

// printer writes results as indented JSON. Poll listeners call it from the
// getter goroutine, hence the lock.
type printer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newPrinter(w io.Writer) *printer {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &printer{enc: enc}
}

func (p *printer) print(r Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(r); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
