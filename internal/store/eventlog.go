package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Atharv714/Safe-Passage/internal/model"
)

// DefaultCapacity is the number of events retained when no capacity is configured.
const DefaultCapacity = 1000

// ErrInvalidCapacity is returned when an event log is built with a non-positive capacity.
var ErrInvalidCapacity = errors.New("event log capacity must be positive")

// Option configures an EventLog.
type Option func(*EventLog)

// WithClock overrides the time source used for receivedAt.
func WithClock(now func() time.Time) Option {
	return func(l *EventLog) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDFunc overrides event ID generation.
func WithIDFunc(newID func() string) Option {
	return func(l *EventLog) {
		if newID != nil {
			l.newID = newID
		}
	}
}

// EventLog is a fixed-capacity circular buffer of events in arrival order.
// Once full, each append evicts the oldest event.
type EventLog struct {
	mu      sync.RWMutex
	buf     []model.Event
	head    int // index of the oldest event
	size    int
	seq     uint64
	evicted uint64
	last    time.Time

	now   func() time.Time
	newID func() string
}

// NewEventLog builds an empty log holding at most capacity events.
func NewEventLog(capacity int, opts ...Option) (*EventLog, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	l := &EventLog{
		buf:   make([]model.Event, capacity),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Append stores ev as the newest event and returns its sequence number and
// the number of retained events. ReceivedAt is stamped when zero and never
// moves backwards relative to earlier stamped events.
func (l *EventLog) Append(ev model.Event) (uint64, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.ReceivedAt.IsZero() {
		ts := l.now().UTC()
		if ts.Before(l.last) {
			ts = l.last
		}
		ev.ReceivedAt = ts
	}
	if ev.ReceivedAt.After(l.last) {
		l.last = ev.ReceivedAt
	}
	if ev.ID == "" {
		ev.ID = l.newID()
	}
	l.seq++
	ev.Seq = l.seq

	if l.size == len(l.buf) {
		l.evictOldestLocked()
	}
	l.buf[(l.head+l.size)%len(l.buf)] = ev
	l.size++

	return ev.Seq, l.size
}

// evictOldestLocked drops the oldest event. Caller must hold l.mu.
func (l *EventLog) evictOldestLocked() bool {
	if l.size == 0 {
		return false
	}
	l.buf[l.head] = model.Event{}
	l.head = (l.head + 1) % len(l.buf)
	l.size--
	l.evicted++
	return true
}

// Recent returns up to limit events, newest first. The result is a copy.
func (l *EventLog) Recent(limit int) []model.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := limit
	if n > l.size {
		n = l.size
	}
	if n <= 0 {
		return []model.Event{}
	}

	out := make([]model.Event, n)
	for i := 0; i < n; i++ {
		out[i] = l.buf[(l.head+l.size-1-i)%len(l.buf)]
	}
	return out
}

// Count returns the number of retained events.
func (l *EventLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Capacity returns the maximum number of retained events.
func (l *EventLog) Capacity() int {
	return len(l.buf)
}

// Evicted returns how many events have been dropped since the log was built.
func (l *EventLog) Evicted() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.evicted
}
