package audit

import "time"

// Event is an immutable, append-only trail record.
//
// Invariants:
// - Events are never updated or deleted.
// - Appending is best-effort; do not block capture or sync flows on audit failures.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the trail record.
	Type EventType `json:"type" db:"type"`

	// CallID ties the event to a call record when applicable.
	CallID string `json:"call_id,omitempty" db:"call_id"`

	// TaskID ties the event to a sync task when applicable.
	TaskID string `json:"task_id,omitempty" db:"task_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeRecordChange EventType = "record_change"
	EventTypeSyncEnqueued EventType = "sync_enqueued"
	EventTypeSyncFailed   EventType = "sync_failed"
)
