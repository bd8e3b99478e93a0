package reporting

// TimeRange filters by call end timestamp, epoch millis. A zero bound is
// open on that side.

type TimeRange struct {
	FromMS int64 `json:"from_ms"`
	ToMS   int64 `json:"to_ms"`
}

func (r TimeRange) contains(ts int64) bool {
	if r.FromMS > 0 && ts < r.FromMS {
		return false
	}
	if r.ToMS > 0 && ts > r.ToMS {
		return false
	}
	return true
}

// SummaryRequest requests aggregated call metrics.

type SummaryRequest struct {
	Range TimeRange `json:"range"`
}

// Summary is the field-sales view of a day (or any range) of calling.

type Summary struct {
	TotalCalls    int `json:"total_calls"`
	AnsweredCalls int `json:"answered_calls"`
	MissedCalls   int `json:"missed_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`

	// OutcomeCounts breaks annotated calls down by disposition.
	// Calls without an outcome yet are not counted here.
	OutcomeCounts map[string]int `json:"outcome_counts"`

	AnswerRate float64 `json:"answer_rate"`
}
