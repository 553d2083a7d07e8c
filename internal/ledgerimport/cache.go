package ledgerimport

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const statsKeyPrefix = "ledger:sync_stats:"

// Cache keeps per-client sync stats in Redis so the dashboard does not hit
// Postgres on every page load. All methods are nil-safe.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps a Redis client with the stats TTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// GetStats returns cached stats, or nil on a miss.
func (c *Cache) GetStats(ctx context.Context, clientID uuid.UUID) (*SyncStats, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, statsKeyPrefix+clientID.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var stats SyncStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SetStats stores stats under the client key.
func (c *Cache) SetStats(ctx context.Context, clientID uuid.UUID, stats SyncStats) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsKeyPrefix+clientID.String(), data, c.ttl).Err()
}

// InvalidateStats drops the cached stats after an import reaches a terminal
// state.
func (c *Cache) InvalidateStats(ctx context.Context, clientID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, statsKeyPrefix+clientID.String()).Err()
}
