package lock

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_MutualExclusion(t *testing.T) {
	l := NewLocal()
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "attempt-1")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, l.held(), "idle keys are dropped")
}

func TestLocal_IndependentKeys(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocal_ContextCancelWhileWaiting(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Zero(t, l.held())
}

// Redis tests need a server; set TUTORCAT_TEST_REDIS_ADDR to run them.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TUTORCAT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TUTORCAT_TEST_REDIS_ADDR not set")
	}
	c := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(context.Background()).Err())
	return c
}

func TestRedis_LockAndRelease(t *testing.T) {
	c := redisClient(t)
	r := NewRedis(c, RedisOptions{Prefix: "tutorcat:test:", TTL: 5 * time.Second, Retry: 5 * time.Millisecond}, nil)
	ctx := context.Background()

	unlock, err := r.Lock(ctx, t.Name())
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = r.Lock(short, t.Name())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := r.Lock(ctx, t.Name())
	require.NoError(t, err)
	unlock2()
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	c := redisClient(t)
	r := NewRedis(c, RedisOptions{Prefix: "tutorcat:test:", TTL: time.Second}, nil)
	ctx := context.Background()
	key := "tutorcat:test:" + t.Name()

	unlock, err := r.Lock(ctx, t.Name())
	require.NoError(t, err)
	// Simulate expiry and takeover by another replica.
	require.NoError(t, c.Set(ctx, key, "someone-else", time.Second).Err())
	unlock()

	v, err := c.Get(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
	require.NoError(t, c.Del(ctx, key).Err())
}
