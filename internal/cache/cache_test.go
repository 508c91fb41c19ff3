package cache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache() *QueryCache {
	return New(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

func TestFetch_MemoizesWithinTTL(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	var calls atomic.Int32

	producer := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "routes", nil
	}

	v, err := c.Fetch(ctx, "k", time.Minute, producer)
	require.NoError(t, err)
	assert.Equal(t, "routes", v)

	v, err = c.Fetch(ctx, "k", time.Minute, producer)
	require.NoError(t, err)
	assert.Equal(t, "routes", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_ExpiresAfterTTL(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	var calls atomic.Int32

	producer := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return calls.Load(), nil
	}

	_, err := c.Fetch(ctx, "k", 20*time.Millisecond, producer)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	v, err := c.Fetch(ctx, "k", 20*time.Millisecond, producer)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
}

func TestFetch_SingleFlight(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})

	producer := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const concurrent = 8
	var wg sync.WaitGroup
	results := make([]any, concurrent)
	errs := make([]error, concurrent)
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Fetch(ctx, "k", time.Minute, producer)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "producer must run exactly once")
	for i := 0; i < concurrent; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

func TestFetch_FailureIsNotCached(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	var calls atomic.Int32

	failing := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("gateway down")
	}

	_, err := c.Fetch(ctx, "k", time.Minute, failing)
	require.Error(t, err)

	// Retry is allowed immediately and succeeds.
	v, err := c.Fetch(ctx, "k", time.Minute, func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidatePrefix(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	seed := func(key, val string) {
		_, err := c.Fetch(ctx, key, time.Minute, func(ctx context.Context) (any, error) { return val, nil })
		require.NoError(t, err)
	}
	seed("discovery:recent:5", "a")
	seed("discovery:recent:20", "b")
	seed("discovery:city:lisboa", "c")

	c.InvalidatePrefix("discovery:recent:")

	var calls atomic.Int32
	counting := func(val string) Producer {
		return func(ctx context.Context) (any, error) {
			calls.Add(1)
			return val, nil
		}
	}

	// Busted entries refetch, the untouched one does not.
	_, err := c.Fetch(ctx, "discovery:recent:5", time.Minute, counting("a2"))
	require.NoError(t, err)
	_, err = c.Fetch(ctx, "discovery:recent:20", time.Minute, counting("b2"))
	require.NoError(t, err)
	v, err := c.Fetch(ctx, "discovery:city:lisboa", time.Minute, counting("c2"))
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "c", v)
}
