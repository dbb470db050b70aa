package fetch

import (
	"context"
	crand "crypto/rand"
	"math/big"
	"time"
)

const (
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 9
	// DefaultMinTimeout is the shortest backoff between attempts.
	DefaultMinTimeout = 2 * time.Second
	// DefaultMaxTimeout caps the backoff between attempts.
	DefaultMaxTimeout = 5 * time.Second

	// maxBackoffShift bounds the exponent so the multiplier cannot overflow.
	maxBackoffShift = 20
)

// RetryConfig governs how many times a GET is retried and how long to wait
// between attempts.
type RetryConfig struct {
	Retries    int
	MinTimeout time.Duration
	MaxTimeout time.Duration
}

// DefaultRetryConfig returns the production retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Retries:    DefaultRetries,
		MinTimeout: DefaultMinTimeout,
		MaxTimeout: DefaultMaxTimeout,
	}
}

// Attempts returns the total number of attempts, including the first one.
func (c RetryConfig) Attempts() int {
	if c.Retries < 0 {
		return 1
	}
	return c.Retries + 1
}

// Delay returns the wait before the given 1-based retry. The result is an
// exponential step from MinTimeout with up to 50% jitter, always within
// [MinTimeout, MaxTimeout].
func (c RetryConfig) Delay(retry int) time.Duration {
	lo := c.MinTimeout
	if lo <= 0 {
		return 0
	}
	hi := c.MaxTimeout
	if hi < lo {
		hi = lo
	}

	shift := retry - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	d := lo * time.Duration(1<<shift)
	if d <= 0 || d > hi {
		d = hi
	}

	// Jitter: add a random share of up to half the step
	if span := d / 2; span > 0 {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(span)))
		if err == nil {
			d += time.Duration(n.Int64())
		}
	}

	if d > hi {
		d = hi
	}
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
