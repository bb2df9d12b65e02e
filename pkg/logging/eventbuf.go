// Package logging keeps the audit trail of executed management operations:
// a ring of recent records for the HTTP API and optional syslog and file
// sinks.
package logging

import (
	"strings"
	"sync"
	"time"
)

// Record is one executed management operation.
type Record struct {
	Time      time.Time     `json:"time"`
	Operation string        `json:"operation"`
	Address   string        `json:"address"`
	Outcome   string        `json:"outcome"`
	Failure   string        `json:"failure,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Failed reports whether the operation failed.
func (r *Record) Failed() bool { return r.Outcome != "success" }

// EventBuffer is a thread-safe circular buffer of recent records.
type EventBuffer struct {
	mu    sync.RWMutex
	buf   []Record
	size  int
	head  int
	count int

	subMu sync.RWMutex
	subs  map[*Subscription]struct{}
}

// Subscription receives new records from an EventBuffer.
type Subscription struct {
	C  chan Record
	eb *EventBuffer
}

// Close unsubscribes. C is not closed.
func (s *Subscription) Close() {
	s.eb.unsubscribe(s)
}

// NewEventBuffer creates a buffer holding the last size records.
func NewEventBuffer(size int) *EventBuffer {
	if size < 1 {
		size = 1
	}
	return &EventBuffer{
		buf:  make([]Record, size),
		size: size,
		subs: make(map[*Subscription]struct{}),
	}
}

// Add appends a record, overwriting the oldest if full. Slow subscribers
// miss records rather than block the caller.
func (eb *EventBuffer) Add(rec Record) {
	eb.mu.Lock()
	eb.buf[eb.head] = rec
	eb.head = (eb.head + 1) % eb.size
	if eb.count < eb.size {
		eb.count++
	}
	eb.mu.Unlock()

	eb.subMu.RLock()
	for sub := range eb.subs {
		select {
		case sub.C <- rec:
		default:
		}
	}
	eb.subMu.RUnlock()
}

// Len returns the number of records held.
func (eb *EventBuffer) Len() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.count
}

// Subscribe returns a Subscription that receives new records.
func (eb *EventBuffer) Subscribe(bufSize int) *Subscription {
	if bufSize < 1 {
		bufSize = 64
	}
	sub := &Subscription{
		C:  make(chan Record, bufSize),
		eb: eb,
	}
	eb.subMu.Lock()
	eb.subs[sub] = struct{}{}
	eb.subMu.Unlock()
	return sub
}

func (eb *EventBuffer) unsubscribe(sub *Subscription) {
	eb.subMu.Lock()
	delete(eb.subs, sub)
	eb.subMu.Unlock()
}

// EventFilter selects records. Empty fields match everything.
type EventFilter struct {
	Operation string // exact operation name
	Outcome   string // "success" or "failed"
	Address   string // address prefix, e.g. "/subsystem=logging"
}

// IsEmpty returns true if no criteria are set.
func (f EventFilter) IsEmpty() bool {
	return f.Operation == "" && f.Outcome == "" && f.Address == ""
}

// Matches reports whether rec passes the filter.
func (f EventFilter) Matches(rec *Record) bool {
	if f.Operation != "" && rec.Operation != f.Operation {
		return false
	}
	if f.Outcome != "" && !strings.EqualFold(rec.Outcome, f.Outcome) {
		return false
	}
	return f.Address == "" || strings.HasPrefix(rec.Address, f.Address)
}

// LatestFiltered returns the most recent n records matching f, newest first.
func (eb *EventBuffer) LatestFiltered(n int, f EventFilter) []Record {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	var result []Record
	for i := 0; i < eb.count && len(result) < n; i++ {
		idx := (eb.head - 1 - i + eb.size) % eb.size
		if f.Matches(&eb.buf[idx]) {
			result = append(result, eb.buf[idx])
		}
	}
	return result
}

// Latest returns the most recent n records, newest first.
func (eb *EventBuffer) Latest(n int) []Record {
	return eb.LatestFiltered(n, EventFilter{})
}
