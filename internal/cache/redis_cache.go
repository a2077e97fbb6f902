package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type sentValue struct {
	MessageID string    `json:"messageId"`
	SentAt    time.Time `json:"sentAt"`
}

func sentKey(providerMessageID string) string {
	return "wamsg:" + providerMessageID
}

func (c *RedisCache) StoreSent(ctx context.Context, messageID, providerMessageID string, sentAt time.Time) error {
	b, err := json.Marshal(sentValue{
		MessageID: messageID,
		SentAt:    sentAt.UTC(),
	})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, sentKey(providerMessageID), b, c.ttl).Err()
}

func (c *RedisCache) LookupSent(ctx context.Context, providerMessageID string) (string, bool, error) {
	raw, err := c.rdb.Get(ctx, sentKey(providerMessageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var v sentValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false, err
	}
	return v.MessageID, v.MessageID != "", nil
}
