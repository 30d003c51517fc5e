package redisx_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
	"github.com/ariefcatur/warehouse-orders/internal/redisx"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("redis integration test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb := redisx.New(addr)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestIdempotencyClaimLifecycle(t *testing.T) {
	rdb := setupRedis(t)
	idem := redisx.NewIdempotency(rdb)
	ctx := context.Background()

	won, err := idem.Claim(ctx, "k-1")
	require.NoError(t, err)
	require.True(t, won)

	won, err = idem.Claim(ctx, "k-1")
	require.NoError(t, err)
	assert.False(t, won, "second claim must lose")

	_, found, err := idem.Lookup(ctx, "k-1")
	require.NoError(t, err)
	assert.False(t, found, "a pending claim is not a result")

	require.NoError(t, idem.Release(ctx, "k-1"))
	won, err = idem.Claim(ctx, "k-1")
	require.NoError(t, err)
	require.True(t, won, "released key can be claimed again")

	require.NoError(t, idem.Remember(ctx, "k-1", 42))
	require.NoError(t, idem.Release(ctx, "k-1"))
	id, found, err := idem.Lookup(ctx, "k-1")
	require.NoError(t, err)
	require.True(t, found, "release leaves a remembered key alone")
	assert.Equal(t, int64(42), id)
}

func TestIdempotencyClaimIsExclusive(t *testing.T) {
	rdb := setupRedis(t)
	idem := redisx.NewIdempotency(rdb)
	ctx := context.Background()

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			won, err := idem.Claim(ctx, "k-race")
			if err == nil && won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestOrderCacheKeepsNewerVersion(t *testing.T) {
	rdb := setupRedis(t)
	cache := redisx.NewOrderCache(rdb, zap.NewNop())
	ctx := context.Background()

	newer := &domain.Order{ID: 7, CustomerID: 1, Status: domain.StatusPending, Version: 2}
	older := &domain.Order{ID: 7, CustomerID: 1, Status: domain.StatusPending, Version: 1}

	cache.Set(ctx, newer)
	cache.Set(ctx, older)
	got, ok := cache.Get(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Version)

	newest := &domain.Order{ID: 7, CustomerID: 1, Status: domain.StatusPicked, Version: 3}
	cache.Set(ctx, newest)
	got, ok = cache.Get(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, domain.StatusPicked, got.Status)

	ttl, err := rdb.PTTL(ctx, "order:7").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
