package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheGenKey         = "catalog:gen"
	cacheSnapshotPrefix = "catalog:snapshot:"
)

// Cache keeps the catalog snapshot in Redis under a generation number.
// Invalidation bumps the generation, so a loader that read the store before
// an admin write can only fill a key nobody reads any more.
type Cache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewCache returns a snapshot cache. A nil client or a non-positive ttl
// yields a cache that always misses.
func NewCache(rdb redis.Cmdable, ttl time.Duration) *Cache {
	if rdb == nil || ttl <= 0 {
		return &Cache{}
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func snapshotKey(gen int64) string {
	return cacheSnapshotPrefix + strconv.FormatInt(gen, 10)
}

func (c *Cache) enabled() bool { return c != nil && c.rdb != nil }

// Load returns the snapshot cached for the current generation. gen is
// returned on a miss too and must be passed to Store.
func (c *Cache) Load(ctx context.Context) (snap Snapshot, gen int64, hit bool, err error) {
	if !c.enabled() {
		return Snapshot{}, 0, false, nil
	}
	gen, err = c.rdb.Get(ctx, cacheGenKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Snapshot{}, 0, false, err
	}
	raw, err := c.rdb.Get(ctx, snapshotKey(gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, gen, false, nil
	}
	if err != nil {
		return Snapshot{}, gen, false, err
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, gen, false, err
	}
	return snap, gen, true, nil
}

// Store writes snap for generation gen.
func (c *Cache) Store(ctx context.Context, gen int64, snap Snapshot) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, snapshotKey(gen), raw, c.ttl).Err()
}

// Purge moves to a new generation. Entries of older generations expire on
// their own.
func (c *Cache) Purge(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.rdb.Incr(ctx, cacheGenKey).Err()
}
