//go:build integration

package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)

	client := NewClientFrom(goredis.NewClient(opts), ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	require.NoError(t, client.Ping(ctx))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLocker_HoldSerializes(t *testing.T) {
	client := newTestClient(t)
	locker := NewLocker(client, "clover:resolution:", time.Minute, 10*time.Second)

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Hold(context.Background(), "org-1")
			require.NoError(t, err)
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
}

func TestLocker_AcquireConflict(t *testing.T) {
	client := newTestClient(t)
	locker := NewLocker(client, "", time.Minute, 0)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "org-2", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "org-2", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
}

func TestJSONCache_RoundTrip(t *testing.T) {
	client := newTestClient(t)
	cache := NewJSONCache(client, "clover:summary:", time.Minute)
	ctx := context.Background()

	type summary struct {
		Total int `json:"total"`
	}

	var got summary
	hit, err := cache.Get(ctx, "org-1", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, "org-1", summary{Total: 7}))
	hit, err = cache.Get(ctx, "org-1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 7, got.Total)

	require.NoError(t, cache.Invalidate(ctx, "org-1"))
	hit, err = cache.Get(ctx, "org-1", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}
