package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ListUpdateEvent tells listeners that a campaign's lead list or stats changed
type ListUpdateEvent struct {
	TenantID   string           `json:"tenant_id"`
	CampaignID uint             `json:"campaign_id"`
	Reason     string           `json:"reason"`
	LeadsTotal int64            `json:"leads_total"`
	ByStatus   map[string]int64 `json:"by_status,omitempty"`
	At         time.Time        `json:"at"`
}

// EventPublisher emits list-update events
type EventPublisher interface {
	PublishListUpdate(ctx context.Context, event ListUpdateEvent) error
}

// RedisEventPublisher publishes on a per-tenant Redis channel
type RedisEventPublisher struct {
	rc *redis.Client
}

// NewRedisEventPublisher creates a Redis backed publisher
func NewRedisEventPublisher(rc *redis.Client) EventPublisher {
	return &RedisEventPublisher{rc: rc}
}

// ListUpdateChannel returns the pub/sub channel of a tenant
func ListUpdateChannel(tenantID string) string {
	return fmt.Sprintf("campaigns:list-updates:%s", tenantID)
}

// PublishListUpdate publishes event as JSON
func (p *RedisEventPublisher) PublishListUpdate(ctx context.Context, event ListUpdateEvent) error {
	bs, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.rc.Publish(ctx, ListUpdateChannel(event.TenantID), bs).Err()
}

// NoopEventPublisher drops events
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishListUpdate(ctx context.Context, event ListUpdateEvent) error {
	return nil
}
