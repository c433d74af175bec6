// Package logx is a small structured logger emitting RFC5424 syslog
// messages with key/value structured data, in the style of the
// teacher's ingest/log package. It is deliberately narrower: no relays,
// no raw-mode fallback, no UDP shipping — tdsguard only ever logs to a
// single writer (stderr or a file) plus, optionally, an extra writer
// added at startup.
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

// Level is a logging severity, ordered low to high.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Off
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Off:
		return "OFF"
	}
	return "UNKNOWN"
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case Debug:
		return rfc5424.User | rfc5424.Debug
	case Info:
		return rfc5424.User | rfc5424.Info
	case Warn:
		return rfc5424.User | rfc5424.Warning
	case Error:
		return rfc5424.User | rfc5424.Error
	}
	return rfc5424.User | rfc5424.Debug
}

// LevelFromString parses a config-supplied level name, defaulting to Info.
func LevelFromString(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return Debug
	case "WARN":
		return Warn
	case "ERROR":
		return Error
	case "OFF":
		return Off
	default:
		return Info
	}
}

const defaultCallDepth = 3

// Logger writes leveled, structured log lines to one or more writers.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.Writer
	lvl      Level
	appname  string
	hostname string
}

// New builds a Logger at Info level writing to wtr.
func New(wtr io.Writer) *Logger {
	l := &Logger{
		wtrs: []io.Writer{wtr},
		lvl:  Info,
	}
	if h, err := os.Hostname(); err == nil {
		l.hostname = h
	}
	if len(os.Args) > 0 {
		l.appname = filepath.Base(os.Args[0])
	}
	return l
}

// AddWriter fans log output out to an additional writer (e.g. a log file).
func (l *Logger) AddWriter(wtr io.Writer) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.wtrs = append(l.wtrs, wtr)
}

// SetLevel changes the minimum level that is emitted.
func (l *Logger) SetLevel(lvl Level) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.lvl = lvl
}

func (l *Logger) Debug(msg string, kvs ...rfc5424.SDParam) { l.output(defaultCallDepth, Debug, msg, kvs...) }
func (l *Logger) Info(msg string, kvs ...rfc5424.SDParam)  { l.output(defaultCallDepth, Info, msg, kvs...) }
func (l *Logger) Warn(msg string, kvs ...rfc5424.SDParam)  { l.output(defaultCallDepth, Warn, msg, kvs...) }
func (l *Logger) Error(msg string, kvs ...rfc5424.SDParam) { l.output(defaultCallDepth, Error, msg, kvs...) }

func (l *Logger) output(depth int, lvl Level, msg string, kvs ...rfc5424.SDParam) {
	l.mtx.Lock()
	cur := l.lvl
	l.mtx.Unlock()
	if cur == Off || lvl < cur {
		return
	}
	ts := time.Now()
	loc := callLoc(depth)
	line, err := genMessage(ts, lvl.priority(), l.hostname, l.appname, loc, msg, kvs...)
	if err != nil {
		return
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	for _, w := range l.wtrs {
		// Best-effort: a logging failure must never propagate into the data path.
		_, _ = w.Write(line)
		_, _ = io.WriteString(w, "\n")
	}
}

func genMessage(ts time.Time, prio rfc5424.Priority, hostname, appname, msgid, msg string, kvs ...rfc5424.SDParam) ([]byte, error) {
	m := rfc5424.Message{
		Priority:  prio,
		Timestamp: ts,
		Hostname:  trimLength(255, hostname),
		AppName:   trimLength(48, appname),
		MessageID: trimLength(32, msgid),
		Message:   []byte(msg),
	}
	if len(kvs) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: "tdsguard@1", Parameters: kvs}}
	}
	return m.MarshalBinary()
}

func callLoc(depth int) string {
	if _, file, line, ok := runtime.Caller(depth); ok {
		dir, f := filepath.Split(file)
		return fmt.Sprintf("%s:%d", filepath.Join(filepath.Base(dir), f), line)
	}
	return ""
}

func trimLength(n int, s string) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
