package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "test"), mr
}

func TestRedis_SetGetRemove(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "code", "123456", time.Minute))
	assert.True(t, mr.Exists("test:code"))

	val, ok, err := c.Get(ctx, "code")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123456", val)

	require.NoError(t, c.Set(ctx, "code", "654321", time.Minute))
	val, _, err = c.Get(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, "654321", val)

	require.NoError(t, c.Remove(ctx, "code"))
	_, ok, err = c.Get(ctx, "code")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Remove(ctx, "code"))
}

func TestRedis_SetExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "code", "1", time.Minute))
	mr.FastForward(61 * time.Second)

	_, ok, err := c.Get(ctx, "code")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_IncrementWindow(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := c.Increment(ctx, "resend", 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	ttl := mr.TTL("test:resend")
	assert.True(t, ttl > 4*time.Minute && ttl <= 5*time.Minute, "ttl %s", ttl)

	mr.FastForward(2 * time.Minute)
	_, err := c.Increment(ctx, "resend", 5*time.Minute)
	require.NoError(t, err)
	assert.LessOrEqual(t, mr.TTL("test:resend"), 3*time.Minute, "later increments must not extend the window")

	mr.FastForward(4 * time.Minute)
	n, err := c.Increment(ctx, "resend", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedis_IncrementConcurrent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	seen := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := c.Increment(ctx, "counter", time.Minute)
			assert.NoError(t, err)
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]bool{}
	for n := range seen {
		assert.False(t, unique[n], "duplicate count %d", n)
		unique[n] = true
	}
	assert.Len(t, unique, workers)
}

func TestRedis_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedis(client, "")
	mr.Close()

	_, _, err = c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.Increment(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)
}
