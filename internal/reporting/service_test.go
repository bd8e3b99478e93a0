package reporting

import (
	"context"
	"errors"
	"testing"

	"telecrm/internal/callrecord"
)

type staticSource []callrecord.CallRecord

func (s staticSource) GetAll(context.Context) ([]callrecord.CallRecord, error) { return s, nil }

type failingSource struct{}

func (failingSource) GetAll(context.Context) ([]callrecord.CallRecord, error) {
	return nil, errors.New("boom")
}

func sampleRecords() staticSource {
	return staticSource{
		{CallID: "a", Status: callrecord.CallStatusAnswered, DurationSeconds: 60, EndTimestamp: 1000, RecordingRef: "/rec/a.amr", Outcome: callrecord.OutcomeOrdered},
		{CallID: "b", Status: callrecord.CallStatusAnswered, DurationSeconds: 30, EndTimestamp: 2000, Outcome: callrecord.OutcomeCallLater},
		{CallID: "c", Status: callrecord.CallStatusMissed, DurationSeconds: 0, EndTimestamp: 3000},
		{CallID: "d", Status: callrecord.CallStatusAnswered, DurationSeconds: 90, EndTimestamp: 4000, Outcome: callrecord.OutcomeOrdered},
	}
}

func TestSummaryAggregates(t *testing.T) {
	s := NewService(sampleRecords())

	sum, err := s.Summary(context.Background(), SummaryRequest{})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalCalls != 4 || sum.AnsweredCalls != 3 || sum.MissedCalls != 1 {
		t.Fatalf("counts wrong: %#v", sum)
	}
	if sum.TotalDurationSeconds != 180 || sum.AverageDurationSeconds != 45 {
		t.Fatalf("durations wrong: %#v", sum)
	}
	if sum.RecordedCalls != 1 {
		t.Fatalf("recorded calls = %d, want 1", sum.RecordedCalls)
	}
	if sum.OutcomeCounts["Ordered"] != 2 || sum.OutcomeCounts["Call Later"] != 1 {
		t.Fatalf("outcome counts wrong: %v", sum.OutcomeCounts)
	}
	if sum.AnswerRate != 0.75 {
		t.Fatalf("answer rate = %v, want 0.75", sum.AnswerRate)
	}
}

func TestSummaryRangeFilter(t *testing.T) {
	s := NewService(sampleRecords())

	sum, err := s.Summary(context.Background(), SummaryRequest{Range: TimeRange{FromMS: 1500, ToMS: 3500}})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalCalls != 2 || sum.AnsweredCalls != 1 || sum.MissedCalls != 1 {
		t.Fatalf("range filter wrong: %#v", sum)
	}
}

func TestSummaryInvalidRange(t *testing.T) {
	s := NewService(sampleRecords())
	if _, err := s.Summary(context.Background(), SummaryRequest{Range: TimeRange{FromMS: 10, ToMS: 5}}); err != ErrInvalidRequest {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestSummarySourceError(t *testing.T) {
	s := NewService(failingSource{})
	if _, err := s.Summary(context.Background(), SummaryRequest{}); err == nil {
		t.Fatal("expected source error to propagate")
	}
}
