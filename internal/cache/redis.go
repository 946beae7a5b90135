// Package cache regroupe les usages Redis transverses : cache produit et révocation des JWT.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/observability"
	"boutique_back_end/internal/store"
)

const ProductCacheTTL = 10 * time.Minute

func productKey(id string) string { return "product:" + id }

// ProductCache décore un store.Catalog avec un cache-aside Redis sur ProductByID.
// Les écritures passant par le décorateur invalident l'entrée correspondante.
type ProductCache struct {
	store.Catalog
	rdb *redis.Client
	ttl time.Duration
	sf  singleflight.Group
}

func NewProductCache(next store.Catalog, rdb *redis.Client, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = ProductCacheTTL
	}
	return &ProductCache{Catalog: next, rdb: rdb, ttl: ttl}
}

func (c *ProductCache) ProductByID(ctx context.Context, id string) (*models.Product, error) {
	log := observability.FromContext(ctx)

	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	switch {
	case err == nil:
		var p models.Product
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	case !errors.Is(err, redis.Nil):
		log.Warn("⚠️ Erreur lecture cache produit", zap.String("product_id", id), zap.Error(err))
	}

	v, err, _ := c.sf.Do(id, func() (any, error) {
		return c.Catalog.ProductByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*models.Product)

	if raw, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, productKey(id), raw, c.ttl).Err(); err != nil {
			log.Warn("⚠️ Impossible de mettre le produit en cache", zap.String("product_id", id), zap.Error(err))
		}
	}
	return &p, nil
}

func (c *ProductCache) SetAvailability(ctx context.Context, id string, available bool) error {
	if err := c.Catalog.SetAvailability(ctx, id, available); err != nil {
		return err
	}
	return c.Invalidate(ctx, id)
}

func (c *ProductCache) SetImageKey(ctx context.Context, id, key string) error {
	if err := c.Catalog.SetImageKey(ctx, id, key); err != nil {
		return err
	}
	return c.Invalidate(ctx, id)
}

func (c *ProductCache) ApplyStock(ctx context.Context, id string, fn store.StockFunc) (int, int, error) {
	prev, next, err := c.Catalog.ApplyStock(ctx, id, fn)
	if err != nil {
		return prev, next, err
	}
	return prev, next, c.Invalidate(ctx, id)
}

// Invalidate supprime les produits du cache (après une commande par exemple).
func (c *ProductCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidation cache produit: %w", err)
	}
	return nil
}

// --- Blacklist JWT (révocation avant expiration) ---

type TokenBlacklist struct {
	rdb *redis.Client
}

func NewTokenBlacklist(rdb *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{rdb: rdb}
}

// Revoke blackliste un jti jusqu'à l'expiration naturelle du token.
func (b *TokenBlacklist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.rdb.Set(ctx, "blacklist:"+tokenID, "revoked", ttl).Err()
}

func (b *TokenBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := b.rdb.Exists(ctx, "blacklist:"+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
