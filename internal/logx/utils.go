package logx

import (
	"fmt"

	"github.com/crewjam/rfc5424"
)

// KV builds a structured-data key/value pair for a log call.
func KV(name string, value any) rfc5424.SDParam {
	if s, ok := value.(string); ok {
		return rfc5424.SDParam{Name: name, Value: s}
	}
	return rfc5424.SDParam{Name: name, Value: fmt.Sprintf("%v", value)}
}

// KVErr is shorthand for KV("error", err).
func KVErr(err error) rfc5424.SDParam {
	return KV("error", err)
}
