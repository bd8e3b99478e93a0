package calllog

import (
	"context"
	"sort"
	"sync"
)

// MemoryLog is the in-process call-log mirror. The dialer companion reports
// system call-log rows into it over the agent API; the correlator queries it.

type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (l *MemoryLog) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *MemoryLog) Entries(ctx context.Context, number string, fromMS, toMS int64) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0)
	for _, e := range l.entries {
		if e.Number != number {
			continue
		}
		if e.Date < fromMS || e.Date > toMS {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}
