package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const detailCacheTTL = time.Hour

type (
	// DetailCache is consulted by the client before hitting the remote
	// catalog for item details, sparing the per-call rate-limit budget
	// for items we have seen recently.
	DetailCache interface {
		Get(ctx context.Context, itemID string) (*ItemDetail, error)
		Set(ctx context.Context, detail *ItemDetail) error
	}

	RedisConfig struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	}

	redisDetailCache struct {
		client *redis.Client
	}
)

// NewRedisDetailCache connects to Redis and returns a DetailCache backed
// by it. The connection is verified with a ping before returning.
func NewRedisDetailCache(ctx context.Context, config RedisConfig) (DetailCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisDetailCache{client: client}, nil
}

func (cache *redisDetailCache) Get(ctx context.Context, itemID string) (*ItemDetail, error) {
	data, err := cache.client.Get(ctx, detailCacheKey(itemID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var detail ItemDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, err
	}

	return &detail, nil
}

func (cache *redisDetailCache) Set(ctx context.Context, detail *ItemDetail) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return err
	}

	return cache.client.Set(ctx, detailCacheKey(detail.ID), data, detailCacheTTL).Err()
}

func detailCacheKey(itemID string) string {
	return fmt.Sprintf("catalog:detail:%s", itemID)
}
