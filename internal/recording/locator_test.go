package recording

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedIndex struct {
	// hitAfter is the query count at which a hit is returned; 0 = never.
	hitAfter int
	item     Item
	err      error

	queries int
	gotFrom int64
	gotTo   int64
}

func (s *scriptedIndex) Newest(ctx context.Context, fromSec, toSec int64) (Item, bool, error) {
	s.queries++
	s.gotFrom = fromSec
	s.gotTo = toSec
	if s.err != nil {
		return Item{}, false, s.err
	}
	if s.hitAfter > 0 && s.queries >= s.hitAfter {
		return s.item, true, nil
	}
	return Item{}, false, nil
}

func newTestLocator(idx MediaIndex) (*Locator, *time.Duration) {
	l := NewLocator(idx, nil)
	var slept time.Duration
	l.sleep = func(d time.Duration) { slept += d }
	return l, &slept
}

func TestLocateFirstHitWins(t *testing.T) {
	idx := &scriptedIndex{hitAfter: 3, item: Item{Ref: "media://42", AddedAt: 100}}
	l, slept := newTestLocator(idx)

	item, ok := l.Locate(context.Background(), 0, 60_000)
	if !ok || item.Ref != "media://42" {
		t.Fatalf("expected hit, got ok=%v item=%#v", ok, item)
	}
	if idx.queries != 3 {
		t.Fatalf("polling must stop at first hit, queried %d times", idx.queries)
	}
	if *slept != 3*pollInterval {
		t.Fatalf("expected %v slept, got %v", 3*pollInterval, *slept)
	}
}

func TestLocateGivesUpAfterBudget(t *testing.T) {
	idx := &scriptedIndex{}
	l, slept := newTestLocator(idx)

	_, ok := l.Locate(context.Background(), 0, 60_000)
	if ok {
		t.Fatalf("expected no hit")
	}
	if idx.queries != pollAttempts {
		t.Fatalf("expected %d attempts, got %d", pollAttempts, idx.queries)
	}
	if *slept != pollAttempts*pollInterval {
		t.Fatalf("expected bounded wait %v, got %v", pollAttempts*pollInterval, *slept)
	}
}

func TestLocateWindowIsSecondsWithPadding(t *testing.T) {
	idx := &scriptedIndex{}
	l, _ := newTestLocator(idx)

	l.Locate(context.Background(), 100_000, 160_000)
	if idx.gotFrom != 90 || idx.gotTo != 170 {
		t.Fatalf("window [%d, %d], want [90, 170]", idx.gotFrom, idx.gotTo)
	}
}

func TestLocateContinuesPastQueryErrors(t *testing.T) {
	idx := &scriptedIndex{err: errors.New("index offline")}
	l, _ := newTestLocator(idx)

	_, ok := l.Locate(context.Background(), 0, 60_000)
	if ok {
		t.Fatalf("expected no hit")
	}
	if idx.queries != pollAttempts {
		t.Fatalf("errors must not abort polling, queried %d times", idx.queries)
	}
}

func TestMemoryIndexNewestInWindow(t *testing.T) {
	m := NewMemoryIndex()
	m.Add(Item{Ref: "media://1", AddedAt: 50})
	m.Add(Item{Ref: "media://2", AddedAt: 70})
	m.Add(Item{Ref: "media://3", AddedAt: 500}) // outside window

	item, ok, err := m.Newest(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("newest: %v", err)
	}
	if !ok || item.Ref != "media://2" {
		t.Fatalf("expected newest in-window item, got ok=%v item=%#v", ok, item)
	}

	_, ok, _ = m.Newest(context.Background(), 1000, 2000)
	if ok {
		t.Fatalf("expected no item outside window")
	}
}
