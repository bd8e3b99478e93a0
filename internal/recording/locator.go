package recording

import (
	"context"
	"log/slog"
	"time"
)

// Recording availability lags call completion unpredictably (the recorder
// app flushes the file on its own schedule), so the locator polls the media
// index for a bounded time and accepts "not found" as a valid terminal state.
const (
	pollAttempts = 5
	pollInterval = 2 * time.Second

	// Window padding around the call, in seconds (media add-times are
	// epoch seconds, unlike call-log millis).
	windowPaddingSec = 10
)

// Item is one media-index row.
type Item struct {
	// Ref is the opaque locator stored on the call record and later
	// resolved by the upload path.
	Ref     string `json:"ref"`
	Name    string `json:"name"`
	AddedAt int64  `json:"added_at"` // epoch seconds
}

// MediaIndex returns the newest audio item whose add-time falls inside
// [fromSec, toSec], if any.
type MediaIndex interface {
	Newest(ctx context.Context, fromSec, toSec int64) (Item, bool, error)
}

// Locator polls a MediaIndex for the recording of one call window.
type Locator struct {
	index MediaIndex
	log   *slog.Logger

	sleep func(time.Duration)
}

func NewLocator(index MediaIndex, log *slog.Logger) *Locator {
	if log == nil {
		log = slog.Default()
	}
	return &Locator{
		index: index,
		log:   log,
		sleep: time.Sleep,
	}
}

// SetSleep replaces the delay function. Used in tests.
func (l *Locator) SetSleep(sleep func(time.Duration)) { l.sleep = sleep }

// Locate polls for a recording correlated to the call window given in epoch
// millis. The first hit wins. After the poll budget is exhausted it returns
// ok=false; the caller keeps the record without a reference.
func (l *Locator) Locate(ctx context.Context, startMS, endMS int64) (Item, bool) {
	fromSec := startMS/1000 - windowPaddingSec
	toSec := endMS/1000 + windowPaddingSec

	for attempt := 1; attempt <= pollAttempts; attempt++ {
		l.sleep(pollInterval)

		item, ok, err := l.index.Newest(ctx, fromSec, toSec)
		if err != nil {
			// Transient read failure is treated as "no match yet".
			l.log.Error("media index query failed", "attempt", attempt, "err", err)
			continue
		}
		if ok {
			l.log.Debug("recording found", "attempt", attempt, "ref", item.Ref)
			return item, true
		}
		l.log.Debug("no recording yet", "attempt", attempt, "from_sec", fromSec, "to_sec", toSec)
	}
	return Item{}, false
}
