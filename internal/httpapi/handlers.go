package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"telecrm/internal/audit"
	"telecrm/internal/bus"
	"telecrm/internal/calllog"
	"telecrm/internal/callrecord"
	"telecrm/internal/capture"
	"telecrm/internal/recording"
	"telecrm/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Tracker *capture.Tracker
	CallLog *calllog.MemoryLog
	Media   *recording.MemoryIndex
	Bus     *bus.Bus
	Audit   *audit.Service
	Reports *reporting.Service
}

// --- Event ingestion (dialer companion) ---

type outgoingCallRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// OutgoingCall anchors a new call window at dial time.
func (h Handlers) OutgoingCall(c *gin.Context) {
	var req outgoingCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.PhoneNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone_number required"})
		return
	}
	h.Tracker.OnOutgoingCall(req.PhoneNumber)
	c.JSON(http.StatusAccepted, gin.H{"status": "captured"})
}

type callStateRequest struct {
	State string `json:"state"`
}

// CallState feeds a raw phone-state transition into the tracker.
func (h Handlers) CallState(c *gin.Context) {
	var req callStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	switch capture.CallState(req.State) {
	case capture.StateRinging, capture.StateOffHook, capture.StateIdle:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "state must be ringing, offhook or idle"})
		return
	}
	h.Tracker.OnCallState(capture.CallState(req.State))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// --- Device feeds (call-log rows and recorder media items) ---

// FeedCallLog appends call-log rows reported by the device.
func (h Handlers) FeedCallLog(c *gin.Context) {
	var entries []calllog.Entry
	if err := c.ShouldBindJSON(&entries); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	for _, e := range entries {
		if e.Number == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number required on every entry"})
			return
		}
	}
	for _, e := range entries {
		h.CallLog.Append(e)
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(entries)})
}

// FeedRecordings registers recorder output files as they appear.
func (h Handlers) FeedRecordings(c *gin.Context) {
	var items []recording.Item
	if err := c.ShouldBindJSON(&items); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	for _, it := range items {
		if it.Ref == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ref required on every item"})
			return
		}
	}
	for _, it := range items {
		h.Media.Add(it)
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(items)})
}

// --- Call records ---

func (h Handlers) ListCallRecords(c *gin.Context) {
	recs, err := h.Tracker.GetAllCallRecords(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	if recs == nil {
		recs = []callrecord.CallRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"call_records": recs})
}

// RecordOutcome merges the operator's disposition into an existing record.
func (h Handlers) RecordOutcome(c *gin.Context) {
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	var entry callrecord.OutcomeEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rec, err := h.Tracker.RecordOutcome(c.Request.Context(), callID, entry)
	if err != nil {
		switch {
		case errors.Is(err, callrecord.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call_id"})
		case errors.Is(err, callrecord.ErrInvalidRecord):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid outcome"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "outcome update failed"})
		}
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- Reporting and trail ---

// ReportSummary aggregates the record book into day-level sales metrics.
func (h Handlers) ReportSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	var req reporting.SummaryRequest
	var err error
	if req.Range.FromMS, err = queryInt64(c, "from_ms"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from_ms must be epoch millis"})
		return
	}
	if req.Range.ToMS, err = queryInt64(c, "to_ms"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to_ms must be epoch millis"})
		return
	}
	sum, err := h.Reports.Summary(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to_ms must not precede from_ms"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// ListAuditTrail returns the most recent trail events, newest first.
func (h Handlers) ListAuditTrail(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	limit, err := queryInt64(c, "limit")
	if err != nil || limit < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	events, err := h.Audit.List(c.Request.Context(), int(limit))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func queryInt64(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// StreamCallRecords pushes change notifications over SSE so a UI can
// refresh without polling. One event per store write.
func (h Handlers) StreamCallRecords(c *gin.Context) {
	if h.Bus == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "events not configured"})
		return
	}
	sub := h.Bus.Subscribe(bus.TopicCallRecordsUpdated)
	defer h.Bus.Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.Ch():
			if !ok {
				return false
			}
			c.SSEvent("update", ev.Payload)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
