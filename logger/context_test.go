package logger

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type testContextKey string

func TestWithFetchCounter(t *testing.T) {
	existingKey := testContextKey("existing_key")
	ctx := WithFetchCounter(context.WithValue(context.Background(), existingKey, "existing_value"))

	assert.Equal(t, int64(0), GetFetchCounter(ctx))
	assert.Equal(t, int64(0), GetRetryCounter(ctx))
	assert.Equal(t, int64(0), GetFetchElapsed(ctx))
	assert.Equal(t, "existing_value", ctx.Value(existingKey))

	IncrementFetchCounter(ctx)
	IncrementFetchCounter(ctx)
	IncrementRetryCounter(ctx)
	AddFetchElapsed(ctx, 1500)

	assert.Equal(t, int64(2), GetFetchCounter(ctx))
	assert.Equal(t, int64(1), GetRetryCounter(ctx))
	assert.Equal(t, int64(1500), GetFetchElapsed(ctx))
}

func TestFetchCounterNilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	ctx := WithFetchCounter(nil)
	IncrementFetchCounter(ctx)
	assert.Equal(t, int64(1), GetFetchCounter(ctx))
}

func TestFetchCounterWithoutTracker(t *testing.T) {
	ctx := context.Background()

	IncrementFetchCounter(ctx)
	IncrementRetryCounter(ctx)
	AddFetchElapsed(ctx, 10)

	assert.Equal(t, int64(0), GetFetchCounter(ctx))
	assert.Equal(t, int64(0), GetRetryCounter(ctx))
	assert.Equal(t, int64(0), GetFetchElapsed(ctx))
}

func TestFetchCounterConcurrent(t *testing.T) {
	ctx := WithFetchCounter(context.Background())
	const workers, perWorker = 8, 100

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				IncrementFetchCounter(ctx)
				AddFetchElapsed(ctx, 2)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers*perWorker), GetFetchCounter(ctx))
	assert.Equal(t, int64(workers*perWorker*2), GetFetchElapsed(ctx))
}

func TestWithSeverityHook(t *testing.T) {
	assert.Nil(t, severityHookFromContext(context.Background()))

	ctx := WithSeverityHook(context.Background(), nil)
	assert.Nil(t, severityHookFromContext(ctx))

	called := false
	ctx = WithSeverityHook(context.Background(), func(zerolog.Level) { called = true })
	hook := severityHookFromContext(ctx)
	if assert.NotNil(t, hook) {
		hook(zerolog.WarnLevel)
	}
	assert.True(t, called)
}
