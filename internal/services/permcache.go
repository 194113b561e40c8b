package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/types"
)

// PermissionCache is a read-through cache in front of the permission table.
// Every method is safe on a nil receiver so the service layer never has to
// branch on whether Redis is configured. Cache misses and Redis failures
// both fall through to the database; the cache is never authoritative.
type PermissionCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewPermissionCache(rdb *redis.Client, ttl time.Duration, baseLog *logger.Logger) *PermissionCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PermissionCache{rdb: rdb, ttl: ttl, log: baseLog.With("component", "PermissionCache")}
}

func permCacheKey(tagID, userID string) string {
	return fmt.Sprintf("perm:%s:%s", tagID, userID)
}

func (c *PermissionCache) Get(ctx context.Context, tagID, userID string) (types.PermissionLevel, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.rdb.Get(ctx, permCacheKey(tagID, userID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("permission cache read failed", "error", err)
		}
		return "", false
	}
	level := types.PermissionLevel(val)
	if level.Rank() == 0 {
		return "", false
	}
	return level, true
}

func (c *PermissionCache) Set(ctx context.Context, tagID, userID string, level types.PermissionLevel) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, permCacheKey(tagID, userID), string(level), c.ttl).Err(); err != nil {
		c.log.Warn("permission cache write failed", "error", err)
	}
}

func (c *PermissionCache) InvalidatePair(ctx context.Context, tagID, userID string) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, permCacheKey(tagID, userID)).Err(); err != nil {
		c.log.Warn("permission cache invalidate failed", "error", err)
	}
}

// InvalidateTag drops every cached entry for one tag. Used on tag delete,
// where stale grants for a dead tag would otherwise survive for a full TTL.
func (c *PermissionCache) InvalidateTag(ctx context.Context, tagID string) {
	if c == nil {
		return
	}
	iter := c.rdb.Scan(ctx, 0, permCacheKey(tagID, "*"), 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("permission cache scan failed", "tag_id", tagID, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("permission cache invalidate failed", "tag_id", tagID, "error", err)
	}
}
