// Package decisionlog is the append-only record of every decision the
// proxy makes, one JSON object per line, with size-based rotation
// into gzip archives.
package decisionlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/sqlumai/tdsguard/internal/logx"
)

// Record is one decision sink entry.
type Record struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	SPID      uint16 `json:"spid"`
	RuleID    string `json:"rule_id,omitempty"`
	Action    string `json:"action"`
	Target    string `json:"target,omitempty"`
	Table     string `json:"table,omitempty"`
	Column    string `json:"column,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// DefaultMaxBytes is the rotation threshold when none is configured.
const DefaultMaxBytes = 64 * 1024 * 1024

// Sink is an append-only JSONL writer with best-effort size-based
// rotation. Write is fail-open: a write or rotation error is logged
// and swallowed, never propagated into the caller's data path. Open
// and Close return their errors.
type Sink struct {
	mtx      sync.Mutex
	path     string
	f        *os.File
	written  int64
	maxBytes int64
	log      *logx.Logger
}

// Open creates or appends to path, tracking its current size for
// rotation purposes.
func Open(path string, maxBytes int64, log *logx.Logger) (*Sink, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("decisionlog: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("decisionlog: open: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decisionlog: stat: %w", err)
	}
	return &Sink{path: path, f: f, written: st.Size(), maxBytes: maxBytes, log: log}, nil
}

// Write appends rec as a JSON line, assigning an ID and timestamp if
// unset, and rotates the file first if it has crossed maxBytes.
// Write errors are logged, never returned: a decision log outage must
// never block the data path.
func (s *Sink) Write(rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	line, err := json.Marshal(rec)
	if err != nil {
		s.warn("marshal decision record", err)
		return
	}
	line = append(line, '\n')

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.written >= s.maxBytes {
		if err := s.rotateLocked(); err != nil {
			s.warn("rotate decision log", err)
			// Keep appending to the oversized file rather than losing records.
		}
	}
	n, err := s.f.Write(line)
	if err != nil {
		s.warn("write decision record", err)
		return
	}
	s.written += int64(n)
}

// rotateLocked renames the active file aside, gzips it, removes the
// plain copy, and reopens a fresh active file. It holds an exclusive
// gofrs/flock lock for the duration so a concurrent rotator (e.g. a
// log-shipping sidecar) cannot observe a half-written archive.
func (s *Sink) rotateLocked() error {
	fl := flock.New(s.path + ".rotate.lock")
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire rotation lock: %w", err)
	}
	if !locked {
		return nil // another rotator is already handling it
	}
	defer fl.Unlock()

	// Whichever step below fails, leave an open active file behind so
	// Write keeps appending instead of losing records.
	defer func() {
		if s.f == nil {
			if f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				s.f = f
			}
		}
	}()

	err = s.f.Close()
	s.f = nil
	if err != nil {
		return fmt.Errorf("close active file: %w", err)
	}

	rotated := fmt.Sprintf("%s.%s", s.path, time.Now().UTC().Format("20060102T150405.000000000Z"))
	if err := os.Rename(s.path, rotated); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	if err := gzipFile(rotated, rotated+".gz"); err != nil {
		return fmt.Errorf("gzip archive: %w", err)
	}
	if err := os.Remove(rotated); err != nil {
		return fmt.Errorf("remove rotated plain file: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reopen active file: %w", err)
	}
	s.f = f
	s.written = 0
	return nil
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

func (s *Sink) warn(msg string, err error) {
	if s.log != nil {
		s.log.Warn(msg, logx.KVErr(err))
	}
}

// Close flushes and closes the active file.
func (s *Sink) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.f.Close()
}
