package fetch

import (
	"context"
	"sync"
)

// lifecycle owns the state of a stateful fetcher and the generation counter
// that decides which logical call may still write to it. Every call gets a
// new generation; cancelling or closing bumps it, so results delivered by an
// older call are dropped.
type lifecycle[S any] struct {
	mu         sync.Mutex
	state      S
	gen        uint64
	cancel     context.CancelFunc
	done       chan struct{}
	doneClosed bool
	closed     bool
	onChange   func(S)
	inflight   sync.WaitGroup
}

// begin starts a new logical call with the given initial state. It returns
// false once the owner is closed.
func (l *lifecycle[S]) begin(initial S) (context.Context, uint64, bool) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, 0, false
	}
	l.invalidateLocked()
	l.gen++
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.doneClosed = false
	l.state = initial
	gen := l.gen
	cb := l.onChange
	l.inflight.Add(1)
	l.mu.Unlock()

	if cb != nil {
		cb(initial)
	}
	return ctx, gen, true
}

// update stores s if gen is still the current call.
func (l *lifecycle[S]) update(gen uint64, s S) bool {
	return l.apply(gen, s, false)
}

// finish stores the terminal state s if gen is still current and releases waiters.
func (l *lifecycle[S]) finish(gen uint64, s S) bool {
	return l.apply(gen, s, true)
}

func (l *lifecycle[S]) apply(gen uint64, s S, terminal bool) bool {
	l.mu.Lock()
	if l.closed || gen != l.gen {
		l.mu.Unlock()
		return false
	}
	l.state = s
	done := l.done
	cb := l.onChange
	l.mu.Unlock()

	if cb != nil {
		cb(s)
	}
	if terminal {
		// Waiters are released only after listeners saw the terminal state.
		l.mu.Lock()
		if l.done == done {
			l.closeDoneLocked()
		}
		l.mu.Unlock()
	}
	return true
}

// reset cancels the current call and replaces the state without starting a new one.
func (l *lifecycle[S]) reset(s S) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.invalidateLocked()
	l.gen++
	l.state = s
	cb := l.onChange
	l.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}

// stop marks the current call stale. When closing, no later call may start.
func (l *lifecycle[S]) stop(closing bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidateLocked()
	l.gen++
	if closing {
		l.closed = true
	}
}

func (l *lifecycle[S]) invalidateLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.closeDoneLocked()
}

func (l *lifecycle[S]) closeDoneLocked() {
	if l.done != nil && !l.doneClosed {
		close(l.done)
		l.doneClosed = true
	}
}

func (l *lifecycle[S]) snapshot() S {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *lifecycle[S]) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// wait blocks until the current call is terminal or stale.
func (l *lifecycle[S]) wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
