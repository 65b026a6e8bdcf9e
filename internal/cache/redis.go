package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Redis shares cached views between processes
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to the configured Redis server
func NewRedis(cfg config.CacheConfig) (*Redis, error) {
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Redis cache requires a key prefix")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, utils.WrapAppError(utils.ErrCodeConfiguration, "Failed to connect to Redis", err)
	}

	return NewRedisWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisWithClient wraps an existing client
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *Redis) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, utils.WrapAppError(utils.ErrCodeTransport, "Redis get failed", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, utils.WrapAppError(utils.ErrCodeDecode, "Corrupt cache entry", err)
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return utils.WrapAppError(utils.ErrCodeInternal, "Failed to encode cache entry", err)
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return utils.WrapAppError(utils.ErrCodeTransport, "Redis set failed", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = r.key(key)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return utils.WrapAppError(utils.ErrCodeTransport, "Redis delete failed", err)
	}
	return nil
}

// Clear removes every key under the prefix. Without a prefix the backend
// cannot tell its keys from the rest of the database and refuses.
func (r *Redis) Clear(ctx context.Context) error {
	if r.prefix == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Refusing to clear a Redis cache without a key prefix")
	}
	iter := r.client.Scan(ctx, 0, r.key("*"), 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return utils.WrapAppError(utils.ErrCodeTransport, "Redis delete failed", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return utils.WrapAppError(utils.ErrCodeTransport, "Redis scan failed", err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return utils.WrapAppError(utils.ErrCodeTransport, "Redis delete failed", err)
		}
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
