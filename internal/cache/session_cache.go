package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"neodiag/internal/model"
)

// SessionCache holds sessions that are still being questioned, pending
// question included. Get returns nil, nil for a missing session.
type SessionCache interface {
	Set(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type redisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionCache creates a Redis-backed cache. Every Set refreshes the TTL,
// so an abandoned interview expires ttl after its last step.
func NewRedisSessionCache(client *redis.Client, ttl time.Duration) SessionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisSessionCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *redisSessionCache) key(id string) string {
	return fmt.Sprintf("interview:session:%s", id)
}

func (c *redisSessionCache) Set(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(session.ID), data, c.ttl).Err()
}

func (c *redisSessionCache) Get(ctx context.Context, id string) (*model.Session, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode cached session %s: %w", id, err)
	}
	return &session, nil
}

func (c *redisSessionCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

func (c *redisSessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
