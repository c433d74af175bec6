package logx

import (
	"io"

	"github.com/crewjam/rfc5424"
)

type discard struct{}

func (discard) Write(b []byte) (int, error) { return len(b), nil }

// NewDiscard returns a Logger that drops everything; used by tests and
// by components that are handed no logger explicitly.
func NewDiscard() *Logger {
	return New(discard{})
}

// KVLogger, returned by Logger.With, is a logger-like wrapper that prepends a fixed set of
// structured fields to every call, mirroring the teacher's KVLogger
// (e.g. a per-connection spid attached once and carried through every
// subsequent log line for that connection).
type KVLogger struct {
	base *Logger
	kvs  []rfc5424.SDParam
}

func (l *Logger) With(kvs ...rfc5424.SDParam) *KVLogger {
	return &KVLogger{base: l, kvs: kvs}
}

func (k *KVLogger) Debug(msg string, kvs ...rfc5424.SDParam) {
	k.base.output(defaultCallDepth, Debug, msg, append(append([]rfc5424.SDParam{}, k.kvs...), kvs...)...)
}
func (k *KVLogger) Info(msg string, kvs ...rfc5424.SDParam) {
	k.base.output(defaultCallDepth, Info, msg, append(append([]rfc5424.SDParam{}, k.kvs...), kvs...)...)
}
func (k *KVLogger) Warn(msg string, kvs ...rfc5424.SDParam) {
	k.base.output(defaultCallDepth, Warn, msg, append(append([]rfc5424.SDParam{}, k.kvs...), kvs...)...)
}
func (k *KVLogger) Error(msg string, kvs ...rfc5424.SDParam) {
	k.base.output(defaultCallDepth, Error, msg, append(append([]rfc5424.SDParam{}, k.kvs...), kvs...)...)
}

var _ io.Writer = discard{}
