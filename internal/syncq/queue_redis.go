package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps tasks in a pending list plus a delayed ZSET scored by
// due-time (epoch millis). A Lua script promotes due retries atomically
// before every dequeue, so tasks are never lost between the two structures
// and survive process restarts.

const (
	keyPending = "telecrm:syncq:pending"
	keyDelayed = "telecrm:syncq:delayed"

	promoteBatch = 100
)

var promoteDueScript = redis.NewScript(`
-- KEYS[1] = delayed zset
-- KEYS[2] = pending list
-- ARGV[1] = now (epoch millis)
-- ARGV[2] = max batch
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for i, member in ipairs(due) do
  redis.call('ZREM', KEYS[1], member)
  redis.call('LPUSH', KEYS[2], member)
end
return #due
`)

type RedisQueue struct {
	rdb   *redis.Client
	clock func() time.Time
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, clock: time.Now}
}

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	if !t.Kind.Valid() || t.CallID == "" {
		return ErrInvalidTask
	}
	if t.EnqueuedAt == 0 {
		t.EnqueuedAt = q.clock().UnixMilli()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("syncq: encode task: %w", err)
	}
	return q.rdb.LPush(ctx, keyPending, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Task, bool, error) {
	if err := q.promoteDue(ctx); err != nil {
		return Task{}, false, err
	}

	data, err := q.rdb.RPop(ctx, keyPending).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Task{}, false, nil
		}
		return Task{}, false, err
	}

	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, false, fmt.Errorf("syncq: decode task: %w", err)
	}
	return t, true, nil
}

func (q *RedisQueue) Requeue(ctx context.Context, t Task, delay time.Duration) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("syncq: encode task: %w", err)
	}
	due := q.clock().Add(delay).UnixMilli()
	return q.rdb.ZAdd(ctx, keyDelayed, redis.Z{Score: float64(due), Member: data}).Err()
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := q.clock().UnixMilli()
	return promoteDueScript.Run(ctx, q.rdb, []string{keyDelayed, keyPending}, now, promoteBatch).Err()
}
