//go:build container

package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

func setupRedis(t *testing.T) *Cache {
	t.Helper()
	ctx := context.Background()

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	cache, err := NewCache(ctx, Config{URL: fmt.Sprintf("redis://%s:%s/0", host, port.Port())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestUserLock_SerializesHolders(t *testing.T) {
	cache := setupRedis(t)
	lock := NewUserLock(cache, WithPollInterval(5*time.Millisecond))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			unlock, err := lock.Lock(ctx, "alice")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestUserLock_TimesOut(t *testing.T) {
	cache := setupRedis(t)
	lock := NewUserLock(cache)

	unlock, err := lock.Lock(context.Background(), "bob")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = lock.Lock(ctx, "bob")
	assert.ErrorIs(t, err, shared.ErrLockNotAcquired)
	assert.True(t, shared.IsRetryable(err))
}

func TestRateCache_RoundTrip(t *testing.T) {
	cache := setupRedis(t)
	rc := NewRateCache(cache, nil)
	ctx := context.Background()

	_, err := rc.Load(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, rc.Store(ctx, []rate.SkillEarningRate{{SkillName: "Go", BaseRate: 30, DemandMultiplier: 1, DifficultyMultiplier: 1}}))
	got, err := rc.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 30, got[0].BaseRate)

	require.NoError(t, rc.Invalidate(ctx))
	_, err = rc.Load(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
