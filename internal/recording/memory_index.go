package recording

import (
	"context"
	"sync"
)

// MemoryIndex is the in-process media-index mirror, fed over the agent API
// by the dialer companion as the system media store picks up new audio files.

type MemoryIndex struct {
	mu    sync.Mutex
	items []Item
}

func NewMemoryIndex() *MemoryIndex { return &MemoryIndex{} }

func (m *MemoryIndex) Add(item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
}

func (m *MemoryIndex) Newest(ctx context.Context, fromSec, toSec int64) (Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var newest Item
	found := false
	for _, it := range m.items {
		if it.AddedAt < fromSec || it.AddedAt > toSec {
			continue
		}
		if !found || it.AddedAt > newest.AddedAt {
			newest = it
			found = true
		}
	}
	return newest, found, nil
}
