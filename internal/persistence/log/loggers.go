// Package log persists the stage's tick and audit records as hourly-rotated,
// zstd-compressed JSONL streams.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"stagecraft.ai/internal/sim/stage"
)

const hourLayout = "2006-01-02-15"

// Stream appends JSON lines to an hour-stamped .jsonl.zst file, opening a
// fresh file when the UTC hour rolls over. Safe for concurrent writers.
type Stream struct {
	dir  string
	name string

	mu   sync.Mutex
	hour string
	file *os.File
	zw   *zstd.Encoder
	bw   *bufio.Writer
}

func newStream(dir, name string) *Stream {
	return &Stream{dir: dir, name: name}
}

func (s *Stream) path(hour string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.jsonl.zst", s.name, hour))
}

func (s *Stream) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hour := time.Now().UTC().Format(hourLayout); hour != s.hour {
		if err := s.rollLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.bw.Write(append(b, '\n')); err != nil {
		return err
	}
	return s.bw.Flush()
}

func (s *Stream) rollLocked(hour string) error {
	if err := s.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	s.file, s.zw, s.bw, s.hour = f, zw, bufio.NewWriterSize(zw, 128*1024), hour
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Stream) closeLocked() error {
	var err error
	if s.bw != nil {
		_ = s.bw.Flush()
	}
	if s.zw != nil {
		err = s.zw.Close()
		s.zw = nil
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	s.bw = nil
	return err
}

// TickLogger records one entry per stage tick under <stageDir>/events.
type TickLogger struct{ s *Stream }

func NewTickLogger(stageDir string) *TickLogger {
	return &TickLogger{s: newStream(filepath.Join(stageDir, "events"), "events")}
}

func (l *TickLogger) WriteTick(v stage.TickLogEntry) error { return l.s.Write(v) }
func (l *TickLogger) Close() error                         { return l.s.Close() }

// AuditLogger records schedule/claim/outcome audit entries under
// <stageDir>/audit.
type AuditLogger struct{ s *Stream }

func NewAuditLogger(stageDir string) *AuditLogger {
	return &AuditLogger{s: newStream(filepath.Join(stageDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(v stage.AuditEntry) error { return l.s.Write(v) }
func (l *AuditLogger) Close() error                        { return l.s.Close() }
