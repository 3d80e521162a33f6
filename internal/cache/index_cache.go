package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docqa/internal/rag"
)

// IndexCache keeps built document indexes in Redis as JSON snapshots.
type IndexCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewIndexCache(client *redisv9.Client, ttl time.Duration) *IndexCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IndexCache{client: client, ttl: ttl}
}

func (c *IndexCache) Get(ctx context.Context, key string) (*rag.Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get index failed: %w", err)
	}

	var snapshot rag.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached index failed: %w", err)
	}
	return &snapshot, true, nil
}

func (c *IndexCache) Set(ctx context.Context, key string, snapshot *rag.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal index cache failed: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set index failed: %w", err)
	}
	return nil
}

func (c *IndexCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete index failed: %w", err)
	}
	return nil
}
