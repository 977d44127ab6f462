package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlotCache caches rendered slot responses per (template, date). Resolution
// is cheap, but public landing pages hammer the slots endpoint; a short TTL
// plus invalidation on template/rule/exception writes keeps it honest.
//
// A nil *SlotCache is a no-op, so the service runs without Redis configured.
type SlotCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewSlotCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *SlotCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SlotCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *SlotCache) Get(ctx context.Context, templateID, date string) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, slotKey(templateID, date)).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("slot cache read failed", "err", err)
		}
		return nil, false
	}
	return payload, true
}

func (c *SlotCache) Set(ctx context.Context, templateID, date string, payload []byte) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, slotKey(templateID, date), payload, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("slot cache write failed", "err", err)
	}
}

// Invalidate drops every cached date for a template. Called after any write
// to the template, its weekly rules, or its date exceptions.
func (c *SlotCache) Invalidate(ctx context.Context, templateID string) {
	if c == nil || c.rdb == nil {
		return
	}
	iter := c.rdb.Scan(ctx, 0, slotKey(templateID, "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		if c.logger != nil {
			c.logger.Warn("slot cache scan failed", "err", err)
		}
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil && c.logger != nil {
		c.logger.Warn("slot cache invalidation failed", "err", err)
	}
}

func slotKey(templateID, date string) string {
	return "slots:" + templateID + ":" + date
}
