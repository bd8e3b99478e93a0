package reporting

import (
	"context"
	"errors"

	"telecrm/internal/callrecord"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// RecordSource lists call records for aggregation. Satisfied by the call
// record store; metrics are always derived from the local book, never from
// backend state.

type RecordSource interface {
	GetAll(ctx context.Context) ([]callrecord.CallRecord, error)
}

type Service struct {
	records RecordSource
}

func NewService(records RecordSource) *Service { return &Service{records: records} }

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if req.Range.FromMS > 0 && req.Range.ToMS > 0 && req.Range.ToMS < req.Range.FromMS {
		return Summary{}, ErrInvalidRequest
	}
	if s.records == nil {
		return Summary{}, errors.New("reporting: record source not configured")
	}

	recs, err := s.records.GetAll(ctx)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{OutcomeCounts: map[string]int{}}
	for _, rec := range recs {
		if !req.Range.contains(rec.EndTimestamp) {
			continue
		}
		out.TotalCalls++
		out.TotalDurationSeconds += rec.DurationSeconds
		switch rec.Status {
		case callrecord.CallStatusAnswered:
			out.AnsweredCalls++
		case callrecord.CallStatusMissed:
			out.MissedCalls++
		}
		if rec.RecordingRef != "" {
			out.RecordedCalls++
		}
		if rec.Outcome != callrecord.OutcomeNone {
			out.OutcomeCounts[string(rec.Outcome)]++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
		out.AnswerRate = float64(out.AnsweredCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
