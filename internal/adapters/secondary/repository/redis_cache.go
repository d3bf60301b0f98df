package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jupiterclapton/maillage/internal/core/domain"
)

// RedisFeedCache stocke les séquences classées sérialisées en JSON.
// La frontière de sérialisation vit ICI : le reste du code ne voit que
// des []domain.RankedItem, jamais des bytes.
type RedisFeedCache struct {
	client *redis.Client
}

func NewRedisFeedCache(client *redis.Client) *RedisFeedCache {
	return &RedisFeedCache{client: client}
}

func (r *RedisFeedCache) Get(ctx context.Context, key string) ([]domain.RankedItem, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var items []domain.RankedItem
	if err := json.Unmarshal(data, &items); err != nil {
		// Blob illisible (format qui a changé ?) : on le traite comme un
		// miss, le recalcul écrasera la valeur pourrie.
		return nil, false, fmt.Errorf("redis unmarshal %s: %w", key, err)
	}
	return items, true, nil
}

func (r *RedisFeedCache) Set(ctx context.Context, key string, items []domain.RankedItem, ttl time.Duration) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("redis marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeletePattern : SCAN + DEL par paquets. On ne fait JAMAIS de KEYS en prod,
// ça bloque Redis sur un gros keyspace.
func (r *RedisFeedCache) DeletePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()

	pipe := r.client.Pipeline()
	batched := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		batched++
		if batched >= 100 {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("redis delete pattern %s: %w", pattern, err)
			}
			pipe = r.client.Pipeline()
			batched = 0
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if batched > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis delete pattern %s: %w", pattern, err)
		}
	}
	return nil
}
