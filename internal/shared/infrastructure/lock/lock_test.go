package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanKey(t *testing.T) {
	date := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "plan:u1:2026-03-02", PlanKey("u1", date))
}

func exerciseMutualExclusion(t *testing.T, locker Locker) {
	t.Helper()
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "plan:u1:2026-03-02")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewLocalLocker(5*time.Second))
}

func TestLocalLocker_TimesOut(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), "k")
	assert.ErrorIs(t, err, ErrLockTimeout)

	release()
	release()

	again, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	again()
	assert.Empty(t, locker.keys)
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	locker := NewLocalLocker(10 * time.Millisecond)
	a, err := locker.Acquire(context.Background(), "a")
	require.NoError(t, err)
	b, err := locker.Acquire(context.Background(), "b")
	require.NoError(t, err)
	a()
	b()
}

func newRedisLocker(t *testing.T, ttl, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedisLocker(client, ttl, wait, nil)
	locker.retryEvery = time.Millisecond
	return locker, mr
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	locker, _ := newRedisLocker(t, 10*time.Second, 5*time.Second)
	exerciseMutualExclusion(t, locker)
}

func TestRedisLocker_TimesOutAndReleases(t *testing.T) {
	locker, mr := newRedisLocker(t, 10*time.Second, 20*time.Millisecond)

	release, err := locker.Acquire(context.Background(), "plan:u1:2026-03-02")
	require.NoError(t, err)
	assert.True(t, mr.Exists("tempo:lock:plan:u1:2026-03-02"))

	_, err = locker.Acquire(context.Background(), "plan:u1:2026-03-02")
	assert.ErrorIs(t, err, ErrLockTimeout)

	release()
	assert.False(t, mr.Exists("tempo:lock:plan:u1:2026-03-02"))
}

func TestRedisLocker_DoesNotReleaseForeignToken(t *testing.T) {
	locker, mr := newRedisLocker(t, 10*time.Second, 20*time.Millisecond)

	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)

	// Simulate expiry and takeover by another holder.
	require.NoError(t, mr.Set("tempo:lock:k", "someone-else"))
	release()

	value, err := mr.Get("tempo:lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
}
