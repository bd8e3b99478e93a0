package syncq

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"telecrm/internal/bus"
)

type offlineGate struct{}

func (offlineGate) Online(ctx context.Context) bool { return false }

func mustTask(t *testing.T, kind Kind, callID string) Task {
	t.Helper()
	task, err := NewTask(kind, callID, CallLogPayload{PhoneNumber: "+1555", CallStatus: "Missed"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestWorkerDeliversTask(t *testing.T) {
	q := NewMemoryQueue()
	w := NewWorker(q, nil, DefaultRetryPolicy(), nil, nil)

	var handled []string
	w.Register(KindCallLogSync, HandlerFunc(func(ctx context.Context, task Task) error {
		handled = append(handled, task.CallID)
		return nil
	}))

	ctx := context.Background()
	if err := q.Enqueue(ctx, mustTask(t, KindCallLogSync, "c1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	processed, err := w.ProcessOne(ctx)
	if err != nil || !processed {
		t.Fatalf("expected processed, got %v/%v", processed, err)
	}
	if len(handled) != 1 || handled[0] != "c1" {
		t.Fatalf("handler not invoked: %v", handled)
	}
	if q.Len() != 0 {
		t.Fatalf("delivered task must leave the queue, %d left", q.Len())
	}
}

func TestWorkerSkipsWhenOffline(t *testing.T) {
	q := NewMemoryQueue()
	w := NewWorker(q, offlineGate{}, DefaultRetryPolicy(), nil, nil)
	w.Register(KindCallLogSync, HandlerFunc(func(ctx context.Context, task Task) error {
		t.Fatalf("handler must not run while offline")
		return nil
	}))

	ctx := context.Background()
	if err := q.Enqueue(ctx, mustTask(t, KindCallLogSync, "c1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	processed, err := w.ProcessOne(ctx)
	if err != nil || processed {
		t.Fatalf("expected no processing offline, got %v/%v", processed, err)
	}
	if q.Len() != 1 {
		t.Fatalf("task must stay queued while offline")
	}
}

func TestWorkerRetriesWithBackoff(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Unix(1_700_000_000, 0)
	q.SetClock(func() time.Time { return now })

	w := NewWorker(q, nil, DefaultRetryPolicy(), nil, nil)

	calls := 0
	w.Register(KindCallLogSync, HandlerFunc(func(ctx context.Context, task Task) error {
		calls++
		if calls == 1 {
			return errors.New("server 500")
		}
		return nil
	}))

	ctx := context.Background()
	if err := q.Enqueue(ctx, mustTask(t, KindCallLogSync, "c1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := w.ProcessOne(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("failed task must be requeued")
	}

	// Not due yet.
	processed, err := w.ProcessOne(ctx)
	if err != nil || processed {
		t.Fatalf("delayed task must not be visible before its due time")
	}

	// Advance past the first backoff interval.
	now = now.Add(DefaultRetryPolicy().Delay(1) + time.Second)
	processed, err = w.ProcessOne(ctx)
	if err != nil || !processed {
		t.Fatalf("expected retry delivery, got %v/%v", processed, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if q.Len() != 0 {
		t.Fatalf("queue must be drained after success")
	}
}

func TestWorkerDropsPermanentFailure(t *testing.T) {
	q := NewMemoryQueue()
	b := bus.New()
	sub := b.Subscribe(bus.TopicSyncTaskFailed)
	defer b.Unsubscribe(sub)

	w := NewWorker(q, nil, DefaultRetryPolicy(), b, nil)
	w.Register(KindCallLogSync, HandlerFunc(func(ctx context.Context, task Task) error {
		return fmt.Errorf("device not registered: %w", ErrPermanent)
	}))

	ctx := context.Background()
	if err := q.Enqueue(ctx, mustTask(t, KindCallLogSync, "c1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := w.ProcessOne(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("permanent failure must not be retried")
	}

	select {
	case ev := <-sub.Ch():
		p := ev.Payload.(bus.SyncTaskEvent)
		if p.CallID != "c1" || p.Kind != string(KindCallLogSync) {
			t.Fatalf("unexpected failure event %#v", p)
		}
	default:
		t.Fatalf("expected a task_failed event")
	}
}

func TestWorkerDropsWhenRetryBudgetExhausted(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Unix(1_700_000_000, 0)
	q.SetClock(func() time.Time { return now })

	policy := RetryPolicy{InitialInterval: time.Second, MaxInterval: time.Minute, MaxAttempts: 2}
	w := NewWorker(q, nil, policy, nil, nil)

	calls := 0
	w.Register(KindOutcomeSync, HandlerFunc(func(ctx context.Context, task Task) error {
		calls++
		return errors.New("still down")
	}))

	ctx := context.Background()
	task, err := NewTask(KindOutcomeSync, "c1", OutcomePayload{Outcome: "Lost"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := w.ProcessOne(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	now = now.Add(time.Hour)
	if _, err := w.ProcessOne(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if q.Len() != 0 {
		t.Fatalf("exhausted task must be dropped")
	}
}

func TestRetryPolicyDelayGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{InitialInterval: 30 * time.Second, MaxInterval: 15 * time.Minute}

	d1 := p.Delay(1)
	d2 := p.Delay(2)
	d3 := p.Delay(3)
	if d1 != 30*time.Second {
		t.Fatalf("first delay %v, want 30s", d1)
	}
	if d2 <= d1 || d3 <= d2 {
		t.Fatalf("delays must grow: %v %v %v", d1, d2, d3)
	}
	if d := p.Delay(50); d > 15*time.Minute {
		t.Fatalf("delay must cap at MaxInterval, got %v", d)
	}
}

func TestNewTaskValidates(t *testing.T) {
	if _, err := NewTask("bogus", "c1", nil); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask for bad kind, got %v", err)
	}
	if _, err := NewTask(KindCallLogSync, "", nil); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask for empty call id, got %v", err)
	}
}
