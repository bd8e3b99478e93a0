package callrecord

// CallRecord is one dial attempt, created exactly once at call end and
// updated in place afterwards.
//
// Invariants:
// - CallID is the immutable identity key; upsert by CallID never duplicates.
// - RecordingRef is empty until a recording is located; once set it is
//   never cleared by a later update.
// - Outcome annotation fields stay at their zero values until a human
//   disposes the call; merging them never touches the call fields.

type CallRecord struct {
	CallID      string `json:"call_id" db:"call_id"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	// DurationSeconds is resolved post-hoc from the call log; 0 until resolved.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// RecordingRef is an opaque locator for the captured audio, if any.
	RecordingRef string `json:"recording_ref,omitempty" db:"recording_ref"`

	// OwnerIdentity is the operator who placed the call (device-bound).
	OwnerIdentity string `json:"owner_identity" db:"owner_identity"`

	// EndTimestamp is epoch millis of the transition back to idle.
	EndTimestamp int64 `json:"end_timestamp" db:"end_timestamp"`

	Status CallStatus `json:"status" db:"status"`

	// Outcome annotation, absent until disposed.
	CustomerName      string         `json:"customer_name,omitempty" db:"customer_name"`
	Outcome           Outcome        `json:"outcome,omitempty" db:"outcome"`
	Remarks           string         `json:"remarks,omitempty" db:"remarks"`
	FollowUpDate      int64          `json:"follow_up_date,omitempty" db:"follow_up_date"`
	ProductQuantities map[string]int `json:"product_quantities,omitempty" db:"product_quantities"`
	NeedsBranding     bool           `json:"needs_branding" db:"needs_branding"`
	ReasonForLoss     string         `json:"reason_for_loss,omitempty" db:"reason_for_loss"`
	Distributor       string         `json:"distributor,omitempty" db:"distributor"`
}

type CallStatus string

const (
	CallStatusAnswered CallStatus = "Answered"
	CallStatusMissed   CallStatus = "Missed"
)

func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusAnswered, CallStatusMissed:
		return true
	default:
		return false
	}
}

// Outcome is the human disposition of a call. The empty string means
// the call has not been disposed yet.
type Outcome string

const (
	OutcomeNone          Outcome = ""
	OutcomeOrdered       Outcome = "Ordered"
	OutcomeCallLater     Outcome = "Call Later"
	OutcomeOtherConcerns Outcome = "Other Concerns"
	OutcomeLost          Outcome = "Lost"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeNone, OutcomeOrdered, OutcomeCallLater, OutcomeOtherConcerns, OutcomeLost:
		return true
	default:
		return false
	}
}

// OutcomeEntry is the annotation subset a user files against an existing call.
type OutcomeEntry struct {
	CustomerName      string         `json:"customer_name,omitempty"`
	Outcome           Outcome        `json:"outcome"`
	Remarks           string         `json:"remarks,omitempty"`
	FollowUpDate      int64          `json:"follow_up_date,omitempty"`
	ProductQuantities map[string]int `json:"product_quantities,omitempty"`
	NeedsBranding     bool           `json:"needs_branding"`
	ReasonForLoss     string         `json:"reason_for_loss,omitempty"`
	Distributor       string         `json:"distributor,omitempty"`
}

// WithRecording returns a copy with the recording reference attached.
// An empty ref leaves the record unchanged.
func (r CallRecord) WithRecording(ref string) CallRecord {
	if ref == "" {
		return r
	}
	r.RecordingRef = ref
	return r
}

// WithOutcome returns a copy with annotation fields replaced by the entry.
// Call identity and correlation fields are untouched.
func (r CallRecord) WithOutcome(e OutcomeEntry) CallRecord {
	r.CustomerName = e.CustomerName
	r.Outcome = e.Outcome
	r.Remarks = e.Remarks
	r.FollowUpDate = e.FollowUpDate
	r.ProductQuantities = e.ProductQuantities
	r.NeedsBranding = e.NeedsBranding
	r.ReasonForLoss = e.ReasonForLoss
	r.Distributor = e.Distributor
	return r
}
