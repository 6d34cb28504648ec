package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/willowglen/reportpdf/internal/domain"
)

const redisKeyPrefix = "reportpdf:inflight:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long a crashed instance can hold a key before a
	// retrigger is admitted again. Zero means one hour.
	TTL time.Duration
}

// RedisRegistry shares the in-flight set across instances using SET NX.
// Selected when REDIS_ADDR is configured; MemoryRegistry otherwise.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRegistry(ctx context.Context, cfg RedisConfig) (*RedisRegistry, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisRegistry{client: client, ttl: cfg.TTL}, nil
}

func (r *RedisRegistry) Admit(ctx context.Context, key domain.JobKey) (bool, error) {
	held, err := r.client.SetNX(ctx, redisKeyPrefix+string(key), time.Now().UTC().Format(time.RFC3339Nano), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("admit %s: %w", key, err)
	}
	return held, nil
}

func (r *RedisRegistry) Release(ctx context.Context, key domain.JobKey) error {
	if err := r.client.Del(ctx, redisKeyPrefix+string(key)).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
