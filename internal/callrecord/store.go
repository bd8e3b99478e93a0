package callrecord

import (
	"context"
	"errors"
	"sync"

	"telecrm/internal/bus"
)

// Repository is the persistence contract for call records.
// Upsert is insert-or-replace by CallID.

type Repository interface {
	Upsert(ctx context.Context, rec CallRecord) error
	Get(ctx context.Context, callID string) (CallRecord, error)
	GetAll(ctx context.Context) ([]CallRecord, error)
}

var (
	ErrNotFound      = errors.New("callrecord: not found")
	ErrInvalidRecord = errors.New("callrecord: invalid record")
)

// Store serializes all mutation of the call record book and publishes a
// change event after every successful write. Lifecycle reconciliation,
// recording attachment and user outcome edits can race on the same CallID,
// so at most one writer runs at a time.
type Store struct {
	mu   sync.Mutex
	repo Repository
	bus  *bus.Bus
}

func NewStore(repo Repository, b *bus.Bus) *Store {
	return &Store{repo: repo, bus: b}
}

// Upsert writes rec by CallID. If an existing record already carries a
// recording reference and rec does not, the existing reference is kept.
func (s *Store) Upsert(ctx context.Context, rec CallRecord, reason string) error {
	if rec.CallID == "" || !rec.Status.Valid() {
		return ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.RecordingRef == "" {
		existing, err := s.repo.Get(ctx, rec.CallID)
		if err == nil && existing.RecordingRef != "" {
			rec.RecordingRef = existing.RecordingRef
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	if err := s.repo.Upsert(ctx, rec); err != nil {
		return err
	}
	s.publish(rec.CallID, reason)
	return nil
}

// AttachRecording sets the recording reference on an existing record.
// Attaching to a record that already has one is a no-op (first hit wins).
func (s *Store) AttachRecording(ctx context.Context, callID, ref string) (CallRecord, error) {
	if callID == "" || ref == "" {
		return CallRecord{}, ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.repo.Get(ctx, callID)
	if err != nil {
		return CallRecord{}, err
	}
	if rec.RecordingRef != "" {
		return rec, nil
	}
	rec = rec.WithRecording(ref)
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return CallRecord{}, err
	}
	s.publish(callID, "recording_attached")
	return rec, nil
}

// MergeOutcome replaces the annotation fields of an existing record.
func (s *Store) MergeOutcome(ctx context.Context, callID string, entry OutcomeEntry) (CallRecord, error) {
	if callID == "" {
		return CallRecord{}, ErrInvalidRecord
	}
	if !entry.Outcome.Valid() {
		return CallRecord{}, ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.repo.Get(ctx, callID)
	if err != nil {
		return CallRecord{}, err
	}
	rec = rec.WithOutcome(entry)
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return CallRecord{}, err
	}
	s.publish(callID, "outcome_recorded")
	return rec, nil
}

func (s *Store) Get(ctx context.Context, callID string) (CallRecord, error) {
	return s.repo.Get(ctx, callID)
}

func (s *Store) GetAll(ctx context.Context) ([]CallRecord, error) {
	return s.repo.GetAll(ctx)
}

func (s *Store) publish(callID, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.TopicCallRecordsUpdated, bus.CallRecordsUpdatedEvent{
		CallID: callID,
		Reason: reason,
	})
}
