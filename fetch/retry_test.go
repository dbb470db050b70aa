package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 9, cfg.Retries)
	assert.Equal(t, 2*time.Second, cfg.MinTimeout)
	assert.Equal(t, 5*time.Second, cfg.MaxTimeout)
	assert.Equal(t, 10, cfg.Attempts())
}

func TestRetryConfigAttempts(t *testing.T) {
	assert.Equal(t, 1, RetryConfig{}.Attempts())
	assert.Equal(t, 1, RetryConfig{Retries: -3}.Attempts())
	assert.Equal(t, 4, RetryConfig{Retries: 3}.Attempts())
}

func TestRetryConfigDelay(t *testing.T) {
	t.Run("zero minimum disables waiting", func(t *testing.T) {
		assert.Zero(t, RetryConfig{Retries: 3, MaxTimeout: time.Second}.Delay(2))
	})

	t.Run("stays within bounds", func(t *testing.T) {
		cfg := RetryConfig{Retries: 9, MinTimeout: 20 * time.Millisecond, MaxTimeout: 50 * time.Millisecond}
		for retry := 1; retry <= 40; retry++ {
			d := cfg.Delay(retry)
			assert.GreaterOrEqual(t, d, cfg.MinTimeout, "retry %d", retry)
			assert.LessOrEqual(t, d, cfg.MaxTimeout, "retry %d", retry)
		}
	})

	t.Run("max below min collapses to min", func(t *testing.T) {
		cfg := RetryConfig{MinTimeout: 30 * time.Millisecond, MaxTimeout: 10 * time.Millisecond}
		assert.Equal(t, 30*time.Millisecond, cfg.Delay(3))
	})

	t.Run("first retry starts at minimum", func(t *testing.T) {
		cfg := RetryConfig{MinTimeout: 10 * time.Millisecond, MaxTimeout: time.Second}
		d := cfg.Delay(1)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 15*time.Millisecond)
	})
}

func TestSleep(t *testing.T) {
	t.Run("zero duration", func(t *testing.T) {
		require.NoError(t, sleep(context.Background(), 0))
	})

	t.Run("elapses", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, sleep(context.Background(), 10*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := sleep(ctx, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
