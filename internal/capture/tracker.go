package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"telecrm/internal/bus"
	"telecrm/internal/calllog"
	"telecrm/internal/callrecord"
	"telecrm/internal/recording"
	"telecrm/internal/syncq"
)

// CallState is a raw phone-state signal from the dialer companion.
type CallState string

const (
	// StateRinging is an incoming call; incoming calls are not tracked.
	StateRinging CallState = "ringing"

	// StateOffHook fires immediately on dial for outgoing calls, not on
	// answer; answer status comes from the call log afterwards.
	StateOffHook CallState = "offhook"

	StateIdle CallState = "idle"
)

// Resolver resolves a call window against the system call log.
type Resolver interface {
	Resolve(ctx context.Context, number string, startMS, endMS int64) calllog.Result
}

// RecordingFinder polls for the recording of a call window.
type RecordingFinder interface {
	Locate(ctx context.Context, startMS, endMS int64) (recording.Item, bool)
}

// OwnerProvider names the operator identity bound to this device.
// Implemented by the device manager; absence degrades to an empty owner.
type OwnerProvider interface {
	Owner(ctx context.Context) string
}

// window is the snapshot of one dial attempt, anchored at dial time.
type window struct {
	callID string
	number string
	startMS int64
	endMS   int64
}

// Tracker observes phone-state transitions and turns each dial attempt into
// a durable, sync-enqueued call record.
//
// The signal path (OnOutgoingCall / OnCallState) never blocks: on idle the
// captured window is snapshotted and handed to a single worker goroutine
// that drains reconciliations sequentially. A second dial before the
// previous reconciliation finishes overwrites the captured fields, but the
// in-flight reconciliation keeps its own snapshot.
type Tracker struct {
	store    *callrecord.Store
	resolver Resolver
	finder   RecordingFinder
	queue    syncq.Queue
	owner    OwnerProvider
	bus      *bus.Bus
	log      *slog.Logger

	clock func() time.Time

	mu          sync.Mutex
	phoneNumber string
	callID      string
	callStartMS int64

	jobs chan window
	wg   sync.WaitGroup
}

func NewTracker(
	store *callrecord.Store,
	resolver Resolver,
	finder RecordingFinder,
	queue syncq.Queue,
	owner OwnerProvider,
	b *bus.Bus,
	log *slog.Logger,
) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		store:    store,
		resolver: resolver,
		finder:   finder,
		queue:    queue,
		owner:    owner,
		bus:      b,
		log:      log,
		clock:    time.Now,
		jobs:     make(chan window, 16),
	}
}

// Start launches the reconciliation worker. Call Stop to drain and exit.
func (t *Tracker) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case w, ok := <-t.jobs:
				if !ok {
					return
				}
				t.reconcile(ctx, w)
			}
		}
	}()
}

// Stop closes the job channel and waits for in-flight reconciliation.
func (t *Tracker) Stop() {
	close(t.jobs)
	t.wg.Wait()
}

// OnOutgoingCall anchors a new call window: fresh callId, start time now.
// All later correlation windows derive from this instant.
func (t *Tracker) OnOutgoingCall(phoneNumber string) {
	if phoneNumber == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phoneNumber = phoneNumber
	t.callID = uuid.NewString()
	t.callStartMS = t.clock().UnixMilli()
	t.log.Debug("outgoing call captured", "number", phoneNumber, "call_id", t.callID)
}

// OnCallState consumes a raw phone-state signal. Only the transition to
// idle with a captured number does real work; everything else is a no-op,
// so repeated idle signals without a new dial are harmless.
func (t *Tracker) OnCallState(state CallState) {
	switch state {
	case StateRinging:
		t.log.Debug("incoming call ignored")
	case StateOffHook:
		t.log.Debug("call in progress")
	case StateIdle:
		t.onIdle()
	}
}

func (t *Tracker) onIdle() {
	t.mu.Lock()
	if t.phoneNumber == "" {
		t.mu.Unlock()
		return
	}
	w := window{
		callID:  t.callID,
		number:  t.phoneNumber,
		startMS: t.callStartMS,
		endMS:   t.clock().UnixMilli(),
	}
	// Reset for the next call; the snapshot keeps this one alive.
	t.phoneNumber = ""
	t.mu.Unlock()

	select {
	case t.jobs <- w:
	default:
		t.log.Error("reconciliation queue full, call window dropped", "call_id", w.callID)
	}
}

// reconcile turns one captured window into a persisted, sync-enqueued
// record: call-log resolution and initial persistence first, recording
// polling strictly after, so call data is never blocked on the recording.
func (t *Tracker) reconcile(ctx context.Context, w window) {
	res := t.resolver.Resolve(ctx, w.number, w.startMS, w.endMS)

	rec := callrecord.CallRecord{
		CallID:          w.callID,
		PhoneNumber:     w.number,
		DurationSeconds: res.DurationSeconds,
		OwnerIdentity:   t.ownerIdentity(ctx),
		EndTimestamp:    w.endMS,
		Status:          res.Status,
	}
	if err := t.store.Upsert(ctx, rec, "created"); err != nil {
		// Local persistence failed; the sync task still carries the data.
		t.log.Error("call record persist failed", "call_id", w.callID, "err", err)
	}
	t.log.Info("call logged", "call_id", w.callID, "number", w.number, "status", res.Status, "duration_s", res.DurationSeconds)

	t.enqueue(ctx, syncq.KindCallLogSync, w.callID, syncq.CallLogPayload{
		PhoneNumber: w.number,
		CallStatus:  string(res.Status),
		Duration:    int64(res.DurationSeconds),
		Timestamp:   w.endMS,
	})

	item, ok := t.finder.Locate(ctx, w.startMS, w.endMS)
	if !ok {
		// Terminal, valid: the record stays without a recording reference.
		return
	}
	if _, err := t.store.AttachRecording(ctx, w.callID, item.Ref); err != nil {
		t.log.Error("recording attach failed", "call_id", w.callID, "ref", item.Ref, "err", err)
		return
	}
	t.enqueue(ctx, syncq.KindRecordingUpload, w.callID, syncq.RecordingUploadPayload{
		RecordingRef: item.Ref,
	})
}

// RecordOutcome merges user-entered outcome data into an existing record
// and enqueues its sync.
func (t *Tracker) RecordOutcome(ctx context.Context, callID string, entry callrecord.OutcomeEntry) (callrecord.CallRecord, error) {
	rec, err := t.store.MergeOutcome(ctx, callID, entry)
	if err != nil {
		return callrecord.CallRecord{}, err
	}
	t.enqueue(ctx, syncq.KindOutcomeSync, callID, syncq.OutcomePayload{
		CustomerName:      entry.CustomerName,
		Outcome:           string(entry.Outcome),
		Remarks:           entry.Remarks,
		FollowUpDate:      entry.FollowUpDate,
		ProductQuantities: entry.ProductQuantities,
		NeedBranding:      entry.NeedsBranding,
		ReasonForLoss:     entry.ReasonForLoss,
		Distributor:       entry.Distributor,
	})
	return rec, nil
}

// GetAllCallRecords lists every record for display.
func (t *Tracker) GetAllCallRecords(ctx context.Context) ([]callrecord.CallRecord, error) {
	return t.store.GetAll(ctx)
}

func (t *Tracker) ownerIdentity(ctx context.Context) string {
	if t.owner == nil {
		return ""
	}
	return t.owner.Owner(ctx)
}

func (t *Tracker) enqueue(ctx context.Context, kind syncq.Kind, callID string, payload any) {
	task, err := syncq.NewTask(kind, callID, payload)
	if err != nil {
		t.log.Error("sync task build failed", "kind", kind, "call_id", callID, "err", err)
		return
	}
	if err := t.queue.Enqueue(ctx, task); err != nil {
		t.log.Error("sync task enqueue failed", "kind", kind, "call_id", callID, "err", err)
		return
	}
	if t.bus != nil {
		t.bus.Publish(bus.TopicSyncTaskEnqueued, bus.SyncTaskEvent{
			TaskID: task.ID,
			Kind:   string(kind),
			CallID: callID,
		})
	}
	t.log.Debug("sync task enqueued", "kind", kind, "call_id", callID)
}
