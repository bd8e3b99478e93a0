package syncq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"telecrm/internal/bus"
)

// ErrPermanent marks a failure that retrying cannot fix (e.g. missing
// device credentials). Handlers wrap it; the worker drops the task.
var ErrPermanent = errors.New("syncq: permanent failure")

// Handler delivers one task kind to the backend.
type Handler interface {
	Handle(ctx context.Context, t Task) error
}

type HandlerFunc func(ctx context.Context, t Task) error

func (f HandlerFunc) Handle(ctx context.Context, t Task) error { return f(ctx, t) }

// ConnectivityGate reports whether outbound delivery should be attempted.
type ConnectivityGate interface {
	Online(ctx context.Context) bool
}

// AlwaysOnline is the gate for environments without a connectivity signal.
type AlwaysOnline struct{}

func (AlwaysOnline) Online(ctx context.Context) bool { return true }

// Worker drains the queue: one task at a time, dispatched by kind.
// Retryable failures go back on the queue with backoff; permanent ones are
// dropped with a log line and a bus event. Tasks of different kinds share
// the queue but carry no cross-task ordering guarantee.
type Worker struct {
	queue    Queue
	gate     ConnectivityGate
	handlers map[Kind]Handler
	policy   RetryPolicy
	bus      *bus.Bus
	log      *slog.Logger

	pollInterval time.Duration
}

func NewWorker(queue Queue, gate ConnectivityGate, policy RetryPolicy, b *bus.Bus, log *slog.Logger) *Worker {
	if gate == nil {
		gate = AlwaysOnline{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		queue:        queue,
		gate:         gate,
		handlers:     make(map[Kind]Handler),
		policy:       policy,
		bus:          b,
		log:          log,
		pollInterval: 2 * time.Second,
	}
}

func (w *Worker) Register(kind Kind, h Handler) {
	w.handlers[kind] = h
}

// SetPollInterval overrides the idle poll interval.
func (w *Worker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// Run drains the queue until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil {
			w.log.Error("sync worker pass failed", "err", err)
		}
		if processed {
			// Keep draining while there is work.
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOne handles at most one task. It returns false when the gate is
// closed or the queue is empty.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	if !w.gate.Online(ctx) {
		return false, nil
	}

	t, ok, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("syncq: dequeue: %w", err)
	}
	if !ok {
		return false, nil
	}

	h, ok := w.handlers[t.Kind]
	if !ok {
		w.drop(t, fmt.Errorf("no handler for kind %q", t.Kind))
		return true, nil
	}

	if err := h.Handle(ctx, t); err != nil {
		if errors.Is(err, ErrPermanent) {
			w.drop(t, err)
			return true, nil
		}
		t.Attempts++
		if w.policy.Exhausted(t.Attempts) {
			w.drop(t, fmt.Errorf("retry budget exhausted after %d attempts: %w", t.Attempts, err))
			return true, nil
		}
		delay := w.policy.Delay(t.Attempts)
		w.log.Warn("sync task failed, retrying",
			"task_id", t.ID, "kind", t.Kind, "call_id", t.CallID,
			"attempts", t.Attempts, "retry_in", delay, "err", err)
		if qerr := w.queue.Requeue(ctx, t, delay); qerr != nil {
			return true, fmt.Errorf("syncq: requeue: %w", qerr)
		}
		return true, nil
	}

	w.log.Debug("sync task delivered", "task_id", t.ID, "kind", t.Kind, "call_id", t.CallID)
	return true, nil
}

func (w *Worker) drop(t Task, cause error) {
	w.log.Error("sync task dropped", "task_id", t.ID, "kind", t.Kind, "call_id", t.CallID, "err", cause)
	if w.bus != nil {
		w.bus.Publish(bus.TopicSyncTaskFailed, bus.SyncTaskEvent{
			TaskID: t.ID,
			Kind:   string(t.Kind),
			CallID: t.CallID,
		})
	}
}
