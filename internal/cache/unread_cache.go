package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// UnreadCache caches per-user unread counts. Writers must call Invalidate
// synchronously on every append/markRead so reads never observe a stale
// committed count; the TTL only bounds entries for users that stop reading.
type UnreadCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewUnreadCache(client *redisv9.Client, ttl time.Duration) *UnreadCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UnreadCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *UnreadCache) Get(ctx context.Context, userID string) (int64, bool, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Result()
	if err == redisv9.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get unread count failed: %w", err)
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached unread count failed: %w", err)
	}
	return count, true, nil
}

func (c *UnreadCache) Set(ctx context.Context, userID string, count int64) error {
	if err := c.client.Set(ctx, c.key(userID), count, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set unread count failed: %w", err)
	}
	return nil
}

func (c *UnreadCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, c.key(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis invalidate unread count failed: %w", err)
	}
	return nil
}

func (c *UnreadCache) key(userID string) string {
	return "chat:unread:" + userID
}
