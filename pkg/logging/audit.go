package logging

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wildfly/wildfly-core-sub044/pkg/grpcapi"
)

// Sink receives formatted audit messages.
type Sink interface {
	Send(severity int, msg string) error
	ShouldSend(severity int) bool
}

// RecordSink is a Sink that formats records itself.
type RecordSink interface {
	Sink
	SendRecord(severity int, rec *Record) error
}

// AuditLog records every executed operation into a buffer and its sinks.
// It is a grpcapi.Observer.
type AuditLog struct {
	buf *EventBuffer
	now func() time.Time

	mu    sync.RWMutex
	sinks []Sink
}

var _ grpcapi.Observer = (*AuditLog)(nil)

// NewAuditLog returns an audit log feeding buf, which may be nil.
func NewAuditLog(buf *EventBuffer, sinks ...Sink) *AuditLog {
	return &AuditLog{buf: buf, now: time.Now, sinks: sinks}
}

// AddSink adds a sink for subsequent records.
func (a *AuditLog) AddSink(s Sink) {
	a.mu.Lock()
	a.sinks = append(a.sinks, s)
	a.mu.Unlock()
}

// Buffer returns the record buffer, or nil.
func (a *AuditLog) Buffer() *EventBuffer { return a.buf }

func (a *AuditLog) ObserveOperation(o grpcapi.Observation) {
	a.Add(Record{
		Time:      a.now(),
		Operation: o.Operation,
		Address:   o.Address,
		Outcome:   o.Outcome,
		Failure:   o.Failure,
		Elapsed:   o.Elapsed,
	})
}

// Add records rec. Sink errors are logged and otherwise ignored.
func (a *AuditLog) Add(rec Record) {
	if a.buf != nil {
		a.buf.Add(rec)
	}
	sev := RecordSeverity(&rec)
	msg := FormatRecord(&rec)
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, s := range a.sinks {
		if !s.ShouldSend(sev) {
			continue
		}
		var err error
		if rs, ok := s.(RecordSink); ok {
			err = rs.SendRecord(sev, &rec)
		} else {
			err = s.Send(sev, msg)
		}
		if err != nil {
			slog.Warn("audit sink failed", "err", err)
		}
	}
}

// RecordSeverity is warning for failed operations and info otherwise.
func RecordSeverity(rec *Record) int {
	if rec.Failed() {
		return SyslogWarning
	}
	return SyslogInfo
}

// FormatRecord renders rec as a single key=value line.
func FormatRecord(rec *Record) string {
	addr := rec.Address
	if addr == "" {
		addr = "/"
	}
	msg := fmt.Sprintf("operation=%s address=%s outcome=%s elapsed=%s",
		rec.Operation, addr, rec.Outcome, rec.Elapsed.Round(time.Microsecond))
	if rec.Failure != "" {
		msg += fmt.Sprintf(" failure=%q", rec.Failure)
	}
	return msg
}
