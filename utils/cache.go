package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// Default cache ttl set to 3600 seconds
	defaultCacheTTL = time.Hour
	cacheKeyPrefix  = "cache:"
	scanBatch       = 1000
	maxScanRounds   = 50
)

// TagCache stores JSON values in Redis under "cache:<tag>:<key>" so a whole tag can be dropped at once.
// A nil client turns every call into a miss or a no-op.
type TagCache struct {
	rc  *redis.Client
	log *zap.Logger
}

// NewTagCache wraps rc; log may be nil.
func NewTagCache(rc *redis.Client, log *zap.Logger) *TagCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &TagCache{rc: rc, log: log}
}

// CacheKey builds the redis key of an entry.
func CacheKey(tag, key string) string {
	return cacheKeyPrefix + tag + ":" + key
}

// GetJSON loads the entry into out and reports whether it was found and decoded.
func (c *TagCache) GetJSON(ctx context.Context, tag, key string, out interface{}) bool {
	if c == nil || c.rc == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := c.rc.Get(ctx, CacheKey(tag, key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("cache get failed", zap.String("tag", tag), zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		c.log.Warn("cache entry undecodable", zap.String("tag", tag), zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SetJSON marshals v and stores it; ttl <= 0 uses the default hour.
func (c *TagCache) SetJSON(ctx context.Context, tag, key string, v interface{}, ttl time.Duration) {
	if c == nil || c.rc == nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.rc.Set(ctx, CacheKey(tag, key), b, ttl).Err(); err != nil {
		c.log.Warn("cache set failed", zap.String("tag", tag), zap.String("key", key), zap.Error(err))
	}
}

// InvalidateTag deletes every entry stored under tag using SCAN.
func (c *TagCache) InvalidateTag(ctx context.Context, tag string) error {
	if c == nil || c.rc == nil {
		return nil
	}
	return InvalidateByPrefix(ctx, c.rc, cacheKeyPrefix+tag+":")
}

// InvalidateByPrefix deletes keys that match the given prefix using SCAN.
func InvalidateByPrefix(ctx context.Context, rc *redis.Client, prefix string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var cursor uint64
	for i := 0; i < maxScanRounds; i++ { // limit rounds to avoid long loops
		keys, cur, err := rc.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", prefix, err)
		}
		cursor = cur
		if len(keys) > 0 {
			pipe := rc.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("delete %s: %w", prefix, err)
			}
		}
		if cursor == 0 {
			return nil
		}
	}
	return nil
}
