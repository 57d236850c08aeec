package cache

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"neodiag/internal/model"
)

// memorySessionCache keeps encoded sessions in a bounded LRU. Values are
// stored as JSON so callers never share a mutable *model.Session.
type memorySessionCache struct {
	entries *lru.Cache[string, []byte]
}

// NewMemorySessionCache is the in-process fallback used when no Redis is
// configured. The oldest interviews are evicted once size is reached.
func NewMemorySessionCache(size int) (SessionCache, error) {
	if size <= 0 {
		size = 1024
	}
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("init session lru: %w", err)
	}
	return &memorySessionCache{entries: entries}, nil
}

func (c *memorySessionCache) Set(_ context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	c.entries.Add(session.ID, data)
	return nil
}

func (c *memorySessionCache) Get(_ context.Context, id string) (*model.Session, error) {
	data, ok := c.entries.Get(id)
	if !ok {
		return nil, nil
	}
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode cached session %s: %w", id, err)
	}
	return &session, nil
}

func (c *memorySessionCache) Delete(_ context.Context, id string) error {
	c.entries.Remove(id)
	return nil
}

func (c *memorySessionCache) Ping(context.Context) error {
	return nil
}
