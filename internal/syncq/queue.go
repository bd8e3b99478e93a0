package syncq

import (
	"context"
	"sync"
	"time"
)

// Queue is the durable task store. Dequeue is non-blocking; the worker
// polls. Requeue schedules a retry after the given delay.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	Dequeue(ctx context.Context) (Task, bool, error)
	Requeue(ctx context.Context, t Task, delay time.Duration) error
}

// MemoryQueue is an in-memory queue for tests and early development.

type MemoryQueue struct {
	mu      sync.Mutex
	pending []Task
	delayed []delayedTask

	clock func() time.Time
}

type delayedTask struct {
	due  time.Time
	task Task
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{clock: time.Now}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if !t.Kind.Valid() || t.CallID == "" {
		return ErrInvalidTask
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.EnqueuedAt == 0 {
		t.EnqueuedAt = q.clock().UnixMilli()
	}
	q.pending = append(q.pending, t)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Task, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteDue()
	if len(q.pending) == 0 {
		return Task{}, false, nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t, true, nil
}

func (q *MemoryQueue) Requeue(ctx context.Context, t Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, delayedTask{due: q.clock().Add(delay), task: t})
	return nil
}

// Len reports pending plus delayed tasks.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.delayed)
}

// SetClock injects a deterministic clock for tests.
func (q *MemoryQueue) SetClock(clock func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clock = clock
}

func (q *MemoryQueue) promoteDue() {
	now := q.clock()
	remaining := q.delayed[:0]
	for _, d := range q.delayed {
		if !d.due.After(now) {
			q.pending = append(q.pending, d.task)
			continue
		}
		remaining = append(remaining, d)
	}
	q.delayed = remaining
}
