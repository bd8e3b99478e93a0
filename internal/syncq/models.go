package syncq

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Task is one durable unit of outbound work, gated on connectivity and
// independently retryable. Tasks survive process restarts (the Redis queue
// is the durable home; memory is for tests).

type Kind string

const (
	KindCallLogSync     Kind = "call_log_sync"
	KindRecordingUpload Kind = "recording_upload"
	KindOutcomeSync     Kind = "outcome_sync"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCallLogSync, KindRecordingUpload, KindOutcomeSync:
		return true
	default:
		return false
	}
}

type Task struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	CallID string `json:"call_id"`

	Payload json.RawMessage `json:"payload"`

	// Attempts counts completed delivery attempts.
	Attempts int `json:"attempts"`

	EnqueuedAt int64 `json:"enqueued_at"` // epoch millis
}

var ErrInvalidTask = errors.New("syncq: invalid task")

// NewTask builds a task with a fresh id and a marshaled payload.
func NewTask(kind Kind, callID string, payload any) (Task, error) {
	if !kind.Valid() || callID == "" {
		return Task{}, ErrInvalidTask
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("syncq: encode payload: %w", err)
	}
	return Task{
		ID:      uuid.NewString(),
		Kind:    kind,
		CallID:  callID,
		Payload: raw,
	}, nil
}

// CallLogPayload carries the initial call facts. Field names match the
// backend wire format.
type CallLogPayload struct {
	PhoneNumber string `json:"phoneNumber"`
	CallStatus  string `json:"callStatus"`
	Duration    int64  `json:"duration"`  // seconds
	Timestamp   int64  `json:"timestamp"` // epoch millis
}

// RecordingUploadPayload points at the located recording.
type RecordingUploadPayload struct {
	RecordingRef string `json:"recordingRef"`
}

// OutcomePayload carries the human disposition of a call.
type OutcomePayload struct {
	CustomerName      string         `json:"customerName,omitempty"`
	Outcome           string         `json:"outcome,omitempty"`
	Remarks           string         `json:"remarks,omitempty"`
	FollowUpDate      int64          `json:"followUpDate,omitempty"`
	ProductQuantities map[string]int `json:"productQuantities,omitempty"`
	NeedBranding      bool           `json:"needBranding"`
	ReasonForLoss     string         `json:"reasonForLoss,omitempty"`
	Distributor       string         `json:"distributor,omitempty"`
}
