//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"neodiag/internal/testutil/containers"
)

func TestRedisSessionCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	redisC := containers.NewRedisContainer(t)

	suite.Run(t, &SessionCacheSuite{newCache: func(t *testing.T) SessionCache {
		if err := redisC.FlushAll(context.Background()); err != nil {
			t.Fatalf("flush: %v", err)
		}
		return NewRedisSessionCache(redisC.Client, time.Hour)
	}})
}

func TestRedisSessionCacheTTL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	redisC := containers.NewRedisContainer(t)
	ctx := context.Background()

	c := NewRedisSessionCache(redisC.Client, 30*time.Minute)
	sess := activeSession()
	if err := c.Set(ctx, sess); err != nil {
		t.Fatal(err)
	}
	ttl, err := redisC.Client.TTL(ctx, "interview:session:"+sess.ID).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > 30*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}
