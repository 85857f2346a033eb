package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type CachedStatus struct {
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StatusCache struct {
	RDB *redis.Client
}

func (c *StatusCache) key(orderID string) string { return StatusKey(orderID) }

// Get reports ok=false on a miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (CachedStatus, bool, error) {
	var cs CachedStatus
	b, err := c.RDB.Get(ctx, c.key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cs, false, nil
	}
	if err != nil {
		return cs, false, err
	}
	if err := json.Unmarshal(b, &cs); err != nil {
		return cs, false, fmt.Errorf("decode cached status: %w", err)
	}
	return cs, true, nil
}

func (c *StatusCache) Set(ctx context.Context, orderID string, cs CachedStatus) error {
	b, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, c.key(orderID), b, TTLStatusCache).Err()
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.RDB.Del(ctx, c.key(orderID)).Err()
}
