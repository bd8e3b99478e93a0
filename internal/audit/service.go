package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"telecrm/internal/bus"
)

// Repository is the persistence contract for trail events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.

type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, limit int) ([]Event, error)
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Service keeps a trail of everything that happens to the call record book
// and the outbound sync queue, so a stuck or dropped sync can be explained
// after the fact.

type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time

	stop func()
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// List returns the most recent events, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.List(ctx, limit)
}

// Follow subscribes to bus events and appends a trail record for each.
// Append failures are logged, never propagated.
func (s *Service) Follow(ctx context.Context, b *bus.Bus) {
	recordSub := b.Subscribe(bus.TopicCallRecordsUpdated)
	enqueuedSub := b.Subscribe(bus.TopicSyncTaskEnqueued)
	failedSub := b.Subscribe(bus.TopicSyncTaskFailed)
	done := make(chan struct{})
	s.stop = func() {
		b.Unsubscribe(recordSub)
		b.Unsubscribe(enqueuedSub)
		b.Unsubscribe(failedSub)
		<-done
	}

	go func() {
		defer close(done)
		records, enqueued, failed := recordSub.Ch(), enqueuedSub.Ch(), failedSub.Ch()
		for records != nil || enqueued != nil || failed != nil {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-records:
				if !ok {
					records = nil
					continue
				}
				if p, ok := ev.Payload.(bus.CallRecordsUpdatedEvent); ok {
					s.append(ctx, Event{Type: EventTypeRecordChange, CallID: p.CallID, Message: p.Reason})
				}
			case ev, ok := <-enqueued:
				if !ok {
					enqueued = nil
					continue
				}
				if p, ok := ev.Payload.(bus.SyncTaskEvent); ok {
					s.append(ctx, Event{Type: EventTypeSyncEnqueued, CallID: p.CallID, TaskID: p.TaskID, Message: p.Kind})
				}
			case ev, ok := <-failed:
				if !ok {
					failed = nil
					continue
				}
				if p, ok := ev.Payload.(bus.SyncTaskEvent); ok {
					s.append(ctx, Event{Type: EventTypeSyncFailed, CallID: p.CallID, TaskID: p.TaskID, Message: fmt.Sprintf("%s dropped", p.Kind)})
				}
			}
		}
	}()
}

// Stop detaches the bus subscriptions and waits for the follower to exit.
func (s *Service) Stop() {
	if s.stop != nil {
		s.stop()
	}
}

func (s *Service) append(ctx context.Context, e Event) {
	if err := s.Append(ctx, e); err != nil {
		s.log.Error("audit append failed", "type", e.Type, "err", err)
	}
}
