package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prep/internal/interview"

	"github.com/redis/go-redis/v9"
)

const (
	redisResultPrefix = "prep:result:"
	redisOwnerPrefix  = "prep:owner:"
)

// RedisCache shares the result cache between replicas. Entries expire
// after ttl; a zero ttl keeps them until deleted.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &RedisCache{rdb: redis.NewClient(opts), ttl: ttl}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func (c *RedisCache) Get(ctx context.Context, callID string) (*interview.Result, error) {
	b, err := c.rdb.Get(ctx, redisResultPrefix+callID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, interview.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w: %v", interview.ErrTransient, err)
	}
	var r interview.Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode cached result %s: %w", callID, err)
	}
	return &r, nil
}

func (c *RedisCache) Put(ctx context.Context, r interview.Result) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", r.CallID, err)
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisResultPrefix+r.CallID, b, c.ttl)
		if r.OwnerID != "" {
			ownerKey := redisOwnerPrefix + r.OwnerID
			pipe.ZAdd(ctx, ownerKey, redis.Z{Score: float64(r.UpdatedAt.UnixMilli()), Member: r.CallID})
			if c.ttl > 0 {
				pipe.Expire(ctx, ownerKey, c.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w: %v", interview.ErrTransient, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, callID string) error {
	r, err := c.Get(ctx, callID)
	if errors.Is(err, interview.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisResultPrefix+callID)
		if r.OwnerID != "" {
			pipe.ZRem(ctx, redisOwnerPrefix+r.OwnerID, callID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w: %v", interview.ErrTransient, err)
	}
	return nil
}

// LatestForOwner walks the owner's index newest first, skipping members
// whose result key has already expired.
func (c *RedisCache) LatestForOwner(ctx context.Context, ownerID string) (*interview.Result, error) {
	ids, err := c.rdb.ZRevRange(ctx, redisOwnerPrefix+ownerID, 0, 9).Result()
	if err != nil {
		return nil, fmt.Errorf("redis owner index: %w: %v", interview.ErrTransient, err)
	}
	for _, id := range ids {
		r, err := c.Get(ctx, id)
		if errors.Is(err, interview.ErrNotFound) {
			continue
		}
		return r, err
	}
	return nil, interview.ErrNotFound
}

var _ Cache = (*RedisCache)(nil)
