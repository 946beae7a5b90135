package cache

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/store"
)

const testRedisAddr = "localhost:6379"

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testRedisAddr, time.Second)
	if err != nil {
		t.Skipf("Redis indisponible sur %s: %v", testRedisAddr, err)
	}
	_ = conn.Close()

	rdb := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// countingCatalog compte les lectures qui atteignent le store.
type countingCatalog struct {
	store.Catalog
	product *models.Product
	reads   atomic.Int32
	stock   int
}

func (c *countingCatalog) ProductByID(_ context.Context, id string) (*models.Product, error) {
	c.reads.Add(1)
	if id != c.product.ID {
		return nil, models.ErrNotFound
	}
	p := *c.product
	p.Stock = c.stock
	return &p, nil
}

func (c *countingCatalog) ApplyStock(_ context.Context, _ string, fn store.StockFunc) (int, int, error) {
	prev := c.stock
	next, err := fn(prev)
	if err != nil {
		return prev, prev, err
	}
	c.stock = next
	return prev, next, nil
}

func TestProductCacheHitAndInvalidate(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	p := &models.Product{ID: uuid.NewString(), Name: "Tasse", Price: decimal.RequireFromString("9.90")}
	backing := &countingCatalog{product: p, stock: 5}
	c := NewProductCache(backing, rdb, time.Minute)
	t.Cleanup(func() { _ = c.Invalidate(ctx, p.ID) })

	got, err := c.ProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	_, err = c.ProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, backing.reads.Load())

	_, _, err = c.ApplyStock(ctx, p.ID, func(cur int) (int, error) { return cur + 3, nil })
	require.NoError(t, err)

	got, err = c.ProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stock)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("9.90")))
	assert.EqualValues(t, 2, backing.reads.Load())
}

func TestProductCacheNotFoundIsNotCached(t *testing.T) {
	rdb := newTestRedis(t)
	backing := &countingCatalog{product: &models.Product{ID: "known"}}
	c := NewProductCache(backing, rdb, time.Minute)

	_, err := c.ProductByID(context.Background(), "missing-"+uuid.NewString())
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestTokenBlacklist(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	bl := NewTokenBlacklist(rdb)
	jti := uuid.NewString()

	revoked, err := bl.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Revoke(ctx, jti, time.Minute))
	revoked, err = bl.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)
}
