package redisx

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers processed event ids. It only short-circuits replays;
// storage-level guards stay authoritative.
type Deduper struct {
	RDB   *redis.Client
	Scope string
}

func (d *Deduper) key(id string) string { return DedupKey(d.Scope, id) }

func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.RDB, d.key(eventID))
}

// Mark records eventID as processed. Call it only after processing succeeded.
func (d *Deduper) Mark(ctx context.Context, eventID string) error {
	return d.RDB.Set(ctx, d.key(eventID), 1, TTLDedup).Err()
}
