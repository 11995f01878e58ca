package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

// TaskKind identifies what a queued task does
type TaskKind string

const (
	TaskKindRunCampaign TaskKind = "run_campaign"
	TaskKindSendNow     TaskKind = "send_now"
)

// Task is a unit of on-demand work
type Task struct {
	ID         string    `json:"id"`
	Kind       TaskKind  `json:"kind"`
	TenantID   string    `json:"tenant_id"`
	CampaignID uint      `json:"campaign_id"`
	LeadID     uint      `json:"lead_id,omitempty"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// TaskQueue is a durable queue with delayed retry and a dead-letter list
type TaskQueue interface {
	Enqueue(ctx context.Context, task *Task) error
	// Dequeue waits up to timeout and returns nil when no task is ready
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, error)
	// Retry re-schedules task with backoff, or dead-letters it once attempts are exhausted
	Retry(ctx context.Context, task *Task, cause error) (deadLettered bool, err error)
	DeadLetters(ctx context.Context, limit int64) ([]*Task, error)
	Len(ctx context.Context) (int64, error)
}

// RedisTaskQueue implements TaskQueue with a list, a delayed sorted set and a dead-letter list
type RedisTaskQueue struct {
	rc          *redis.Client
	prefix      string
	maxAttempts int
	baseBackoff time.Duration
	clock       utils.Clock
}

// NewRedisTaskQueue creates a task queue under the given key prefix
func NewRedisTaskQueue(rc *redis.Client, prefix string, maxAttempts int, baseBackoff time.Duration) *RedisTaskQueue {
	if prefix == "" {
		prefix = "campaigns:tasks"
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if baseBackoff <= 0 {
		baseBackoff = 5 * time.Second
	}
	return &RedisTaskQueue{
		rc:          rc,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		clock:       utils.SystemClock(),
	}
}

// WithClock replaces the clock used for delayed retries
func (q *RedisTaskQueue) WithClock(clock utils.Clock) *RedisTaskQueue {
	q.clock = clock
	return q
}

func (q *RedisTaskQueue) readyKey() string   { return q.prefix + ":ready" }
func (q *RedisTaskQueue) delayedKey() string { return q.prefix + ":delayed" }
func (q *RedisTaskQueue) deadKey() string    { return q.prefix + ":dead" }

// Enqueue pushes a task for immediate processing
func (q *RedisTaskQueue) Enqueue(ctx context.Context, task *Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = q.clock()
	}
	bs, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.rc.LPush(ctx, q.readyKey(), bs).Err()
}

// Dequeue promotes due retries and pops the oldest ready task
func (q *RedisTaskQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}

	res, err := q.rc.BRPop(ctx, timeout, q.readyKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}

	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("corrupt task payload: %w", err)
	}
	return &task, nil
}

func (q *RedisTaskQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(q.clock().UnixMilli(), 10)
	due, err := q.rc.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, payload := range due {
		removed, err := q.rc.ZRem(ctx, q.delayedKey(), payload).Result()
		if err != nil {
			return err
		}
		// another worker promoted it first
		if removed == 0 {
			continue
		}
		if err := q.rc.LPush(ctx, q.readyKey(), payload).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Retry schedules the task after an exponential backoff
func (q *RedisTaskQueue) Retry(ctx context.Context, task *Task, cause error) (bool, error) {
	task.Attempts++
	if cause != nil {
		task.LastError = cause.Error()
	}

	bs, err := json.Marshal(task)
	if err != nil {
		return false, err
	}

	if task.Attempts >= q.maxAttempts {
		return true, q.rc.LPush(ctx, q.deadKey(), bs).Err()
	}

	delay := q.baseBackoff << (task.Attempts - 1)
	readyAt := q.clock().Add(delay).UnixMilli()
	return false, q.rc.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(readyAt), Member: bs}).Err()
}

// DeadLetters returns the most recent dead tasks
func (q *RedisTaskQueue) DeadLetters(ctx context.Context, limit int64) ([]*Task, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := q.rc.LRange(ctx, q.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Task, 0, len(raw))
	for _, r := range raw {
		var t Task
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			continue
		}
		out = append(out, &t)
	}
	return out, nil
}

// Len returns the number of ready plus delayed tasks
func (q *RedisTaskQueue) Len(ctx context.Context) (int64, error) {
	ready, err := q.rc.LLen(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, err
	}
	delayed, err := q.rc.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return 0, err
	}
	return ready + delayed, nil
}
