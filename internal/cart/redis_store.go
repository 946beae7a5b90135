package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"boutique_back_end/internal/models"
)

const (
	CartTTL = 30 * 24 * time.Hour // 30 jours

	maxTxRetries = 16
)

var errTxContention = errors.New("panier modifié en parallèle, réessayez")

func cartKey(token string) string { return "cart:" + token }

// RedisStore stocke chaque panier en JSON sous cart:<token>.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = CartTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, token string) (models.Cart, error) {
	return decodeCart(s.rdb.Get(ctx, cartKey(token)).Bytes())
}

// Mutate s'appuie sur WATCH/MULTI : si la clé change pendant fn, la transaction est rejouée.
func (s *RedisStore) Mutate(ctx context.Context, token string, fn func(models.Cart) error) (models.Cart, error) {
	key := cartKey(token)
	var result models.Cart

	txf := func(tx *redis.Tx) error {
		current, err := decodeCart(tx.Get(ctx, key).Bytes())
		if err != nil {
			return err
		}
		if err := fn(current); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.write(ctx, pipe, key, current)
		})
		if err == nil {
			result = current
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, errTxContention
}

func (s *RedisStore) Take(ctx context.Context, token string) (models.Cart, error) {
	return decodeCart(s.rdb.GetDel(ctx, cartKey(token)).Bytes())
}

func (s *RedisStore) Restore(ctx context.Context, token string, cart models.Cart) error {
	_, err := s.Mutate(ctx, token, func(current models.Cart) error {
		mergeInto(current, cart)
		return nil
	})
	return err
}

func (s *RedisStore) write(ctx context.Context, pipe redis.Pipeliner, key string, c models.Cart) error {
	if len(c) == 0 {
		return pipe.Del(ctx, key).Err()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return pipe.Set(ctx, key, data, s.ttl).Err()
}

func decodeCart(data []byte, err error) (models.Cart, error) {
	if errors.Is(err, redis.Nil) {
		return models.Cart{}, nil
	}
	if err != nil {
		return nil, err
	}
	c := models.Cart{}
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("panier illisible: %w", err)
	}
	return c, nil
}
