package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CampaignLocker prevents two processes from running the same campaign pass
type CampaignLocker interface {
	// TryLock returns a release func when the lock was acquired, nil otherwise
	TryLock(ctx context.Context, campaignID uint, ttl time.Duration) (func(), error)
}

// RedisCampaignLocker implements CampaignLocker with SET NX
type RedisCampaignLocker struct {
	rc *redis.Client
}

// NewRedisCampaignLocker creates a Redis backed locker
func NewRedisCampaignLocker(rc *redis.Client) CampaignLocker {
	return &RedisCampaignLocker{rc: rc}
}

func (l *RedisCampaignLocker) TryLock(ctx context.Context, campaignID uint, ttl time.Duration) (func(), error) {
	lockKey := fmt.Sprintf("campaigns:lock:%d", campaignID)
	ok, err := l.rc.SetNX(ctx, lockKey, "1", ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return func() {
		_ = l.rc.Del(context.Background(), lockKey).Err()
	}, nil
}
