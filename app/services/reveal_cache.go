package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevealCache keeps reveal results per tenant and person so a paid reveal is reused
type RevealCache interface {
	Get(ctx context.Context, tenantID, personID string) (*RevealResult, error)
	Set(ctx context.Context, tenantID string, result *RevealResult) error
}

// RedisRevealCache implements RevealCache on Redis
type RedisRevealCache struct {
	rc  *redis.Client
	ttl time.Duration
}

// NewRedisRevealCache creates a reveal cache; a zero ttl keeps entries forever
func NewRedisRevealCache(rc *redis.Client, ttl time.Duration) RevealCache {
	return &RedisRevealCache{rc: rc, ttl: ttl}
}

func revealCacheKey(tenantID, personID string) string {
	return fmt.Sprintf("campaigns:reveal:%s:%s", tenantID, personID)
}

// Get returns nil on a miss
func (c *RedisRevealCache) Get(ctx context.Context, tenantID, personID string) (*RevealResult, error) {
	bs, err := c.rc.Get(ctx, revealCacheKey(tenantID, personID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var res RevealResult
	if err := json.Unmarshal(bs, &res); err != nil {
		return nil, fmt.Errorf("corrupt reveal cache entry: %w", err)
	}
	return &res, nil
}

// Set stores a reveal result
func (c *RedisRevealCache) Set(ctx context.Context, tenantID string, result *RevealResult) error {
	if result == nil || result.PersonID == "" {
		return nil
	}
	bs, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.rc.Set(ctx, revealCacheKey(tenantID, result.PersonID), bs, c.ttl).Err()
}
