package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	calls int
	err   error
}

func (l *countingLoader) load(_ context.Context, model string) (string, error) {
	l.calls++
	if l.err != nil {
		return "", l.err
	}
	return "details of " + model, nil
}

func newTestCache(t *testing.T, loader *countingLoader, skip bool) *ReadThroughCache[string, string, string] {
	t.Helper()
	manager := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)
	return NewReadThroughCache[string, string, string](manager, loader.load, skip)
}

// TestReadThroughCache_LoadsOnce verifies the loader runs only on a miss.
func TestReadThroughCache_LoadsOnce(t *testing.T) {
	loader := &countingLoader{}
	cache := newTestCache(t, loader, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := cache.Get(ctx, "llama3", "llama3", time.Minute)
		require.NoError(t, err)
		require.Equal(t, "details of llama3", got)
	}
	require.Equal(t, 1, loader.calls)

	cache.Invalidate(ctx, "llama3")
	_, err := cache.Get(ctx, "llama3", "llama3", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, loader.calls)

	cache.InvalidateAll(ctx)
	_, err = cache.Get(ctx, "llama3", "llama3", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 3, loader.calls)
}

func TestReadThroughCache_ErrorsAreNotCached(t *testing.T) {
	loader := &countingLoader{err: errors.New("model not found")}
	cache := newTestCache(t, loader, false)
	ctx := context.Background()

	_, err := cache.Get(ctx, "x", "x", time.Minute)
	require.EqualError(t, err, "model not found")
	_, err = cache.Get(ctx, "x", "x", time.Minute)
	require.Error(t, err)
	require.Equal(t, 2, loader.calls)
}

func TestReadThroughCache_SkipCache(t *testing.T) {
	loader := &countingLoader{}
	cache := newTestCache(t, loader, true)
	ctx := context.Background()

	_, _ = cache.Get(ctx, "a", "a", time.Minute)
	_, _ = cache.Get(ctx, "a", "a", time.Minute)
	require.Equal(t, 2, loader.calls)
}
