package callrecord

import (
	"context"
	"testing"

	"telecrm/internal/bus"
)

func baseRecord(callID string) CallRecord {
	return CallRecord{
		CallID:        callID,
		PhoneNumber:   "+15551234567",
		OwnerIdentity: "device-1",
		EndTimestamp:  1700000000000,
		Status:        CallStatusMissed,
	}
}

func TestUpsertThenGetAllRoundTrips(t *testing.T) {
	s := NewStore(NewMemoryRepo(), nil)
	ctx := context.Background()

	rec := baseRecord("c1")
	if err := s.Upsert(ctx, rec, "created"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rec.Status = CallStatusAnswered
	rec.DurationSeconds = 30
	if err := s.Upsert(ctx, rec, "created"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("getAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("repeated upserts must not duplicate, got %d records", len(all))
	}
	if all[0].Status != CallStatusAnswered || all[0].DurationSeconds != 30 {
		t.Fatalf("expected last-upserted value, got %#v", all[0])
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	s := NewStore(NewMemoryRepo(), nil)
	ctx := context.Background()

	if err := s.Upsert(ctx, CallRecord{Status: CallStatusMissed}, "created"); err == nil {
		t.Fatalf("expected error for empty call id")
	}
	if err := s.Upsert(ctx, CallRecord{CallID: "c1", Status: "Unknown"}, "created"); err == nil {
		t.Fatalf("expected error for invalid status")
	}
}

func TestRecordingRefNeverCleared(t *testing.T) {
	s := NewStore(NewMemoryRepo(), nil)
	ctx := context.Background()

	if err := s.Upsert(ctx, baseRecord("c1"), "created"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.AttachRecording(ctx, "c1", "media://42"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	// A later full upsert without a ref must keep the attached one.
	if err := s.Upsert(ctx, baseRecord("c1"), "created"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec, err := s.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.RecordingRef != "media://42" {
		t.Fatalf("recording ref cleared, got %q", rec.RecordingRef)
	}

	// Re-attaching is a no-op; the first hit wins.
	rec, err = s.AttachRecording(ctx, "c1", "media://99")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if rec.RecordingRef != "media://42" {
		t.Fatalf("expected first reference kept, got %q", rec.RecordingRef)
	}
}

func TestMergeOutcomeLeavesCallFieldsAlone(t *testing.T) {
	s := NewStore(NewMemoryRepo(), nil)
	ctx := context.Background()

	orig := baseRecord("c1")
	orig.Status = CallStatusAnswered
	orig.DurationSeconds = 30
	if err := s.Upsert(ctx, orig, "created"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	entry := OutcomeEntry{
		CustomerName:      "ACME Stores",
		Outcome:           OutcomeOrdered,
		ProductQuantities: map[string]int{"A": 2},
		NeedsBranding:     true,
	}
	rec, err := s.MergeOutcome(ctx, "c1", entry)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if rec.Outcome != OutcomeOrdered || rec.CustomerName != "ACME Stores" || !rec.NeedsBranding {
		t.Fatalf("outcome not merged: %#v", rec)
	}
	if rec.ProductQuantities["A"] != 2 {
		t.Fatalf("product quantities not merged: %#v", rec.ProductQuantities)
	}
	if rec.PhoneNumber != orig.PhoneNumber || rec.CallID != orig.CallID ||
		rec.EndTimestamp != orig.EndTimestamp || rec.Status != orig.Status ||
		rec.DurationSeconds != orig.DurationSeconds {
		t.Fatalf("call fields mutated by outcome merge: %#v", rec)
	}
}

func TestMergeOutcomeUnknownCall(t *testing.T) {
	s := NewStore(NewMemoryRepo(), nil)
	if _, err := s.MergeOutcome(context.Background(), "missing", OutcomeEntry{Outcome: OutcomeLost}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMergeOutcomeRejectsUnknownOutcome(t *testing.T) {
	s := NewStore(NewMemoryRepo(), nil)
	if _, err := s.MergeOutcome(context.Background(), "c1", OutcomeEntry{Outcome: "Maybe"}); err != ErrInvalidRecord {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestStorePublishesChangeEvents(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe(bus.TopicCallRecordsUpdated)
	defer b.Unsubscribe(sub)

	s := NewStore(NewMemoryRepo(), b)
	ctx := context.Background()

	if err := s.Upsert(ctx, baseRecord("c1"), "created"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.AttachRecording(ctx, "c1", "media://1"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	want := []string{"created", "recording_attached"}
	for _, reason := range want {
		select {
		case ev := <-sub.Ch():
			p := ev.Payload.(bus.CallRecordsUpdatedEvent)
			if p.Reason != reason || p.CallID != "c1" {
				t.Fatalf("unexpected event %#v, want reason %q", p, reason)
			}
		default:
			t.Fatalf("missing %q event", reason)
		}
	}
}
