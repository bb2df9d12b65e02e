package logging

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Syslog severity levels.
const (
	SyslogError   = 3
	SyslogWarning = 4
	SyslogInfo    = 6
)

// Syslog facility: local0 (16).
const syslogFacility = 16

// sdID names the structured data element of operation records. 32473 is
// the private enterprise number reserved for examples.
const sdID = "mgmt@32473"

// SyslogClient sends RFC 5424 messages over UDP. Operation records carry
// their fields as structured data.
type SyslogClient struct {
	conn     net.Conn
	hostname string
	appName  string
	procID   string
	now      func() time.Time
	// MinSeverity drops messages less severe than it; 0 sends everything.
	MinSeverity int
}

var _ RecordSink = (*SyslogClient)(nil)

// NewSyslogClient dials a syslog collector at addr (host:port).
func NewSyslogClient(addr string) (*SyslogClient, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial syslog %s: %w", addr, err)
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "-"
	}
	return &SyslogClient{
		conn:     conn,
		hostname: hostname,
		appName:  "mgmtd",
		procID:   strconv.Itoa(os.Getpid()),
		now:      time.Now,
	}, nil
}

// Send sends a plain message with the given severity.
func (s *SyslogClient) Send(severity int, msg string) error {
	return s.write(severity, "-", "-", msg)
}

// SendRecord sends rec with MSGID "operation". The failure description,
// if any, is the free-form message.
func (s *SyslogClient) SendRecord(severity int, rec *Record) error {
	addr := rec.Address
	if addr == "" {
		addr = "/"
	}
	var sd strings.Builder
	sd.WriteString("[" + sdID)
	for _, p := range [][2]string{
		{"operation", rec.Operation},
		{"address", addr},
		{"outcome", rec.Outcome},
		{"elapsed", rec.Elapsed.Round(time.Microsecond).String()},
	} {
		fmt.Fprintf(&sd, ` %s="%s"`, p[0], sdEscape(p[1]))
	}
	sd.WriteByte(']')
	return s.write(severity, "operation", sd.String(), rec.Failure)
}

func (s *SyslogClient) write(severity int, msgID, sd, msg string) error {
	priority := syslogFacility*8 + severity
	ts := s.now().UTC().Format("2006-01-02T15:04:05.000000Z07:00")
	line := fmt.Sprintf("<%d>1 %s %s %s %s %s %s", priority, ts, s.hostname, s.appName, s.procID, msgID, sd)
	if msg != "" {
		line += " " + msg
	}
	_, err := s.conn.Write([]byte(line))
	return err
}

// sdEscape escapes the characters that end or alter a PARAM-VALUE.
func sdEscape(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "]", `\]`).Replace(v)
}

// ShouldSend returns true if severity passes the client's filter.
// Lower numbers are more severe.
func (s *SyslogClient) ShouldSend(severity int) bool {
	return s.MinSeverity == 0 || severity <= s.MinSeverity
}

// ParseSeverity converts a severity name to its numeric value.
// Unrecognized names give 0, meaning no filter.
func ParseSeverity(name string) int {
	switch name {
	case "error":
		return SyslogError
	case "warning":
		return SyslogWarning
	case "info":
		return SyslogInfo
	default:
		return 0
	}
}

// SeverityName is the inverse of ParseSeverity.
func SeverityName(severity int) string {
	switch severity {
	case SyslogError:
		return "error"
	case SyslogWarning:
		return "warning"
	default:
		return "info"
	}
}

// Close closes the underlying connection.
func (s *SyslogClient) Close() error {
	return s.conn.Close()
}
