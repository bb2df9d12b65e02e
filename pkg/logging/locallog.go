package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LocalLogWriter writes audit messages to a local file with size based
// rotation.
type LocalLogWriter struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxSize  int64
	maxFiles int
	written  int64

	MinSeverity int
	// Format is "json" for one JSON record per line, or "" for
	// timestamped text.
	Format string
}

// LocalLogConfig configures a LocalLogWriter.
type LocalLogConfig struct {
	Path     string
	MaxSize  int64 // bytes before rotation (default 10MB)
	MaxFiles int   // rotated files kept (default 5)
}

// NewLocalLogWriter opens (or creates) the audit file.
func NewLocalLogWriter(cfg LocalLogConfig) (*LocalLogWriter, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path is empty")
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 5
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	lw := &LocalLogWriter{
		file:     f,
		path:     cfg.Path,
		maxSize:  maxSize,
		maxFiles: maxFiles,
	}
	if info, err := f.Stat(); err == nil {
		lw.written = info.Size()
	}
	return lw, nil
}

// Send appends one text line to the file.
func (lw *LocalLogWriter) Send(severity int, msg string) error {
	ts := time.Now().Format("2006-01-02T15:04:05.000")
	return lw.write(fmt.Sprintf("%s [%s] %s\n", ts, strings.ToUpper(SeverityName(severity)), msg))
}

// SendRecord appends rec in the writer's format.
func (lw *LocalLogWriter) SendRecord(severity int, rec *Record) error {
	if lw.Format != "json" {
		return lw.Send(severity, FormatRecord(rec))
	}
	b, err := json.Marshal(struct {
		*Record
		Severity string `json:"severity"`
	}{rec, SeverityName(severity)})
	if err != nil {
		return err
	}
	return lw.write(string(b) + "\n")
}

// write appends line, rotating the file when it grows past the
// configured size.
func (lw *LocalLogWriter) write(line string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.file == nil {
		return errors.New("log file closed")
	}
	n, err := lw.file.WriteString(line)
	if err != nil {
		return err
	}
	lw.written += int64(n)
	if lw.written >= lw.maxSize {
		lw.rotate()
	}
	return nil
}

// ShouldSend returns true if severity passes the writer's filter.
func (lw *LocalLogWriter) ShouldSend(severity int) bool {
	return lw.MinSeverity == 0 || severity <= lw.MinSeverity
}

// Close closes the log file.
func (lw *LocalLogWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.file != nil {
		err := lw.file.Close()
		lw.file = nil
		return err
	}
	return nil
}

// rotate shifts path.N to path.N+1, dropping anything past maxFiles.
func (lw *LocalLogWriter) rotate() {
	lw.file.Close()
	lw.file = nil

	for i := lw.maxFiles - 1; i > 0; i-- {
		os.Rename(fmt.Sprintf("%s.%d", lw.path, i), fmt.Sprintf("%s.%d", lw.path, i+1))
	}
	os.Rename(lw.path, lw.path+".1")
	os.Remove(fmt.Sprintf("%s.%d", lw.path, lw.maxFiles+1))

	f, err := os.OpenFile(lw.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		slog.Warn("failed to open rotated audit log file", "err", err)
		return
	}
	lw.file = f
	lw.written = 0
}
