package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterSpacesRequestsToOneHost(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	observed := map[string]int{}
	l := New(Config{
		Interval: 100 * time.Millisecond,
		Burst:    1,
		Observe: func(domain string, _ time.Duration) {
			mu.Lock()
			observed[domain]++
			mu.Unlock()
		},
	})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://oliveandjune.com/products/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://oliveandjune.com/products/b"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, observed["oliveandjune.com"])
}

func TestLimiterDifferentDomains(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: time.Second, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://oliveandjune.com/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://cdn.shopify.com/1"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://oliveandjune.com"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: time.Hour, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://oliveandjune.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx, "https://oliveandjune.com"))
}
