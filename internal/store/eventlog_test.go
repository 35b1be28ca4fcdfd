package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Atharv714/Safe-Passage/internal/model"
)

func newTestLog(t *testing.T, capacity int, opts ...Option) *EventLog {
	t.Helper()
	l, err := NewEventLog(capacity, opts...)
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	return l
}

func tagged(name string) model.Event {
	return model.Event{UserAgent: name}
}

func agents(events []model.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.UserAgent
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewEventLog_RejectsNonPositiveCapacity(t *testing.T) {
	t.Parallel()

	for _, c := range []int{0, -1} {
		l, err := NewEventLog(c)
		if !errors.Is(err, ErrInvalidCapacity) || l != nil {
			t.Fatalf("capacity=%d err=%v", c, err)
		}
	}
}

func TestAppend_UnderCapacity(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 10)
	var want []string
	for i := 1; i <= 7; i++ {
		name := fmt.Sprintf("e%d", i)
		seq, size := l.Append(tagged(name))
		if seq != uint64(i) || size != i {
			t.Fatalf("append %d: seq=%d size=%d", i, seq, size)
		}
		want = append([]string{name}, want...)
	}
	if l.Count() != 7 {
		t.Fatalf("count=%d", l.Count())
	}
	if got := agents(l.Recent(7)); !equalStrings(got, want) {
		t.Fatalf("recent=%v want %v", got, want)
	}
	if l.Evicted() != 0 {
		t.Fatalf("evicted=%d", l.Evicted())
	}
}

func TestAppend_OverCapacityKeepsNewest(t *testing.T) {
	t.Parallel()

	const capacity = 5
	l := newTestLog(t, capacity)
	for i := 1; i <= 12; i++ {
		_, size := l.Append(tagged(fmt.Sprintf("e%d", i)))
		if size > capacity {
			t.Fatalf("size=%d exceeds capacity", size)
		}
	}
	if l.Count() != capacity {
		t.Fatalf("count=%d", l.Count())
	}
	want := []string{"e12", "e11", "e10", "e9", "e8"}
	if got := agents(l.Recent(capacity)); !equalStrings(got, want) {
		t.Fatalf("recent=%v want %v", got, want)
	}
	if l.Evicted() != 7 {
		t.Fatalf("evicted=%d", l.Evicted())
	}
}

func TestRecent_LimitBeyondCount(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 4)
	for i := 1; i <= 6; i++ {
		l.Append(tagged(fmt.Sprintf("e%d", i)))
	}
	got := l.Recent(100)
	if len(got) != 4 {
		t.Fatalf("len=%d", len(got))
	}
	seen := map[uint64]bool{}
	for i, ev := range got {
		if seen[ev.Seq] {
			t.Fatalf("duplicate seq %d", ev.Seq)
		}
		seen[ev.Seq] = true
		if i > 0 && got[i-1].Seq != ev.Seq+1 {
			t.Fatalf("gap between %d and %d", got[i-1].Seq, ev.Seq)
		}
	}
	if got[0].Seq != 6 {
		t.Fatalf("newest seq=%d", got[0].Seq)
	}
}

func TestRecent_EmptyAndNonPositive(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 3)
	if got := l.Recent(10); got == nil || len(got) != 0 {
		t.Fatalf("recent on empty=%v", got)
	}
	l.Append(tagged("e1"))
	if got := l.Recent(0); len(got) != 0 {
		t.Fatalf("recent(0)=%v", got)
	}
	if got := l.Recent(-3); len(got) != 0 {
		t.Fatalf("recent(-3)=%v", got)
	}
}

func TestScenario_CapacityTwo(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 2)
	l.Append(tagged("e1"))
	l.Append(tagged("e2"))
	l.Append(tagged("e3"))

	if got := agents(l.Recent(10)); !equalStrings(got, []string{"e3", "e2"}) {
		t.Fatalf("recent=%v", got)
	}
	if l.Count() != 2 {
		t.Fatalf("count=%d", l.Count())
	}
}

func TestRecent_ReturnsCopy(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 3)
	l.Append(tagged("e1"))
	got := l.Recent(1)
	got[0].UserAgent = "mutated"

	if again := l.Recent(1); again[0].UserAgent != "e1" {
		t.Fatalf("log mutated through Recent: %q", again[0].UserAgent)
	}

	snapshot := l.Recent(3)
	l.Append(tagged("e2"))
	if len(snapshot) != 1 || snapshot[0].UserAgent != "e1" {
		t.Fatalf("snapshot changed: %v", agents(snapshot))
	}
}

func TestAppend_StampsReceivedAtMonotonic(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(time.Second), base.Add(-time.Minute), base.Add(2 * time.Second)}
	i := 0
	clock := func() time.Time {
		ts := ticks[i]
		i++
		return ts
	}
	l := newTestLog(t, 10, WithClock(clock))
	for range ticks {
		l.Append(model.Event{})
	}

	got := l.Recent(10)
	for j := len(got) - 1; j > 0; j-- {
		older, newer := got[j], got[j-1]
		if newer.ReceivedAt.Before(older.ReceivedAt) {
			t.Fatalf("received went backwards: seq %d=%s seq %d=%s", older.Seq, older.ReceivedAt, newer.Seq, newer.ReceivedAt)
		}
	}
	if !got[1].ReceivedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("clamped=%s", got[1].ReceivedAt)
	}
}

func TestAppend_KeepsCallerFields(t *testing.T) {
	t.Parallel()

	at := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLog(t, 2, WithIDFunc(func() string { return "generated" }))
	l.Append(model.Event{ID: "given", ReceivedAt: at})
	l.Append(model.Event{})

	got := l.Recent(2)
	if got[1].ID != "given" || !got[1].ReceivedAt.Equal(at) {
		t.Fatalf("caller fields overwritten: %+v", got[1])
	}
	if got[0].ID != "generated" {
		t.Fatalf("id=%q", got[0].ID)
	}
}

func TestAppend_DefaultIDsAreUnique(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 50)
	for i := 0; i < 50; i++ {
		l.Append(model.Event{})
	}
	seen := map[string]bool{}
	for _, ev := range l.Recent(50) {
		if ev.ID == "" || seen[ev.ID] {
			t.Fatalf("bad id %q", ev.ID)
		}
		seen[ev.ID] = true
	}
}

func TestEvictOldestLocked(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 3)
	if l.evictOldestLocked() {
		t.Fatalf("evicted from empty log")
	}
	if l.Count() != 0 || l.Evicted() != 0 {
		t.Fatalf("count=%d evicted=%d", l.Count(), l.Evicted())
	}

	l.Append(tagged("e1"))
	l.Append(tagged("e2"))
	l.mu.Lock()
	ok := l.evictOldestLocked()
	l.mu.Unlock()
	if !ok {
		t.Fatalf("expected eviction")
	}
	if got := agents(l.Recent(3)); !equalStrings(got, []string{"e2"}) {
		t.Fatalf("recent=%v", got)
	}
}

func TestAppend_Concurrent(t *testing.T) {
	t.Parallel()

	const workers = 64
	const perWorker = 20
	l := newTestLog(t, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				l.Append(model.Event{})
				_ = l.Recent(5)
				_ = l.Count()
			}
		}()
	}
	wg.Wait()

	if l.Count() != workers*perWorker {
		t.Fatalf("count=%d", l.Count())
	}
	seen := make(map[uint64]bool, workers*perWorker)
	for _, ev := range l.Recent(workers * perWorker) {
		if seen[ev.Seq] {
			t.Fatalf("duplicate seq %d", ev.Seq)
		}
		seen[ev.Seq] = true
	}
	for s := uint64(1); s <= workers*perWorker; s++ {
		if !seen[s] {
			t.Fatalf("missing seq %d", s)
		}
	}
}

func TestReaders_NeverSeeOverCapacity(t *testing.T) {
	t.Parallel()

	const capacity = 8
	l := newTestLog(t, capacity)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				l.Append(model.Event{})
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		if n := l.Count(); n > capacity {
			t.Errorf("count=%d", n)
			break
		}
		if n := len(l.Recent(capacity * 2)); n > capacity {
			t.Errorf("recent=%d", n)
			break
		}
	}
	close(stop)
	wg.Wait()
}
