package calllog

import (
	"context"
	"log/slog"
	"time"

	"telecrm/internal/callrecord"
)

// The system call log is written by another process with no linkage to our
// dial attempt, so correlation is by number and padded time window only.
const (
	// settleDelay gives the system call log time to land after idle.
	settleDelay = 1 * time.Second

	// Window padding around [dial start, call end], in millis.
	windowBeforeStartMS = 10_000
	windowAfterEndMS    = 5_000

	// answeredThresholdSeconds is the minimum logged duration that counts
	// as an answered call.
	answeredThresholdSeconds = 2
)

type CallType string

const (
	CallTypeOutgoing CallType = "outgoing"
	CallTypeIncoming CallType = "incoming"
	CallTypeMissed   CallType = "missed"
)

// Entry is one system call-log row.
type Entry struct {
	Number          string   `json:"number"`
	Type            CallType `json:"type"`
	DurationSeconds int      `json:"duration_seconds"`
	Date            int64    `json:"date"` // epoch millis
}

// Querier reads call-log rows for a number inside [fromMS, toMS],
// newest first.
type Querier interface {
	Entries(ctx context.Context, number string, fromMS, toMS int64) ([]Entry, error)
}

// Result is the resolved outcome of one dial attempt.
type Result struct {
	Status          callrecord.CallStatus
	DurationSeconds int
}

// Correlator resolves whether a dialed call was answered and for how long.
type Correlator struct {
	querier Querier
	log     *slog.Logger

	sleep func(time.Duration)
}

func NewCorrelator(querier Querier, log *slog.Logger) *Correlator {
	if log == nil {
		log = slog.Default()
	}
	return &Correlator{
		querier: querier,
		log:     log,
		sleep:   time.Sleep,
	}
}

// SetSleep replaces the delay function. Used in tests.
func (c *Correlator) SetSleep(sleep func(time.Duration)) { c.sleep = sleep }

// Resolve waits for the call log to settle, then picks the newest matching
// entry in the padded window. A read error or an empty window degrades to
// (Missed, 0); it is never an error, since call logging must not fail on a
// log-read problem.
func (c *Correlator) Resolve(ctx context.Context, number string, startMS, endMS int64) Result {
	c.sleep(settleDelay)

	fromMS := startMS - windowBeforeStartMS
	toMS := endMS + windowAfterEndMS

	entries, err := c.querier.Entries(ctx, number, fromMS, toMS)
	if err != nil {
		c.log.Error("call log query failed", "number", number, "err", err)
		return Result{Status: callrecord.CallStatusMissed}
	}
	if len(entries) == 0 {
		c.log.Warn("no call log entry in window", "number", number, "from_ms", fromMS, "to_ms", toMS)
		return Result{Status: callrecord.CallStatusMissed}
	}

	// Only the newest entry is used; no merging across candidates.
	newest := entries[0]
	status := callrecord.CallStatusMissed
	if newest.Type == CallTypeOutgoing && newest.DurationSeconds >= answeredThresholdSeconds {
		status = callrecord.CallStatusAnswered
	}

	c.log.Debug("call log entry matched",
		"number", number,
		"type", newest.Type,
		"duration_s", newest.DurationSeconds,
		"date", newest.Date,
		"status", status,
	)
	return Result{Status: status, DurationSeconds: newest.DurationSeconds}
}
