// Package rpccodec implements a best-effort scan of an RPC payload to
// recover the procedure name and named parameter literals, plus a
// length-safe in-place rewrite of individual parameter values and an
// optional from-scratch typed repack for a narrow type subset.
package rpccodec

import (
	"strings"
	"unicode/utf16"
)

// Param is one named RPC parameter discovered by Scan, with its byte
// offsets within the decoded (rune-index) text for a given name/value
// occurrence retained implicitly — rewrite re-searches the raw bytes.
type Param struct {
	Name  string
	Value string
}

const paramSearchWindow = 200

// DecodeUTF16LE decodes a raw RPC payload as UTF-16LE. Odd trailing
// bytes are dropped rather than erroring, matching the scanner's
// best-effort contract.
func DecodeUTF16LE(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[i*2]) | uint16(b[i*2+1])<<8
	}
	return string(utf16.Decode(units))
}

// EncodeUTF16LE is the inverse of DecodeUTF16LE.
func EncodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		out[i*2] = byte(u)
		out[i*2+1] = byte(u >> 8)
	}
	return out
}

// Scan best-effort decodes payload as UTF-16LE and extracts the
// procedure name (the identifier, optionally followed by spaces, just
// before the first `@name` parameter) plus each `@name` occurrence
// paired with the next single-quoted literal found within a bounded
// window, provided no other `@` precedes that literal.
func Scan(payload []byte) (proc string, params []Param) {
	text := DecodeUTF16LE(payload)

	firstAt := strings.IndexByte(text, '@')
	if firstAt > 0 {
		end := firstAt
		for end > 0 && text[end-1] == ' ' {
			end--
		}
		start := end
		for start > 0 && isIdentByte(text[start-1]) {
			start--
		}
		if start < end {
			proc = text[start:end]
		}
	}

	i := 0
	for {
		at := strings.IndexByte(text[i:], '@')
		if at < 0 {
			break
		}
		at += i
		nameEnd := at + 1
		for nameEnd < len(text) && isIdentByte(text[nameEnd]) {
			nameEnd++
		}
		name := text[at:nameEnd]
		if nameEnd == at+1 {
			i = at + 1
			continue
		}
		windowEnd := nameEnd + paramSearchWindow
		if windowEnd > len(text) {
			windowEnd = len(text)
		}
		window := text[nameEnd:windowEnd]
		// A literal belongs to this parameter only if no other '@' comes
		// before it; scanning resumes after the literal so an '@' inside
		// it is not taken for a parameter name.
		if q := strings.IndexByte(window, '\''); q >= 0 && !strings.Contains(window[:q], "@") {
			if val, closeIdx, ok := firstQuotedLiteral(window); ok {
				params = append(params, Param{Name: name, Value: val})
				i = nameEnd + closeIdx + 1
				continue
			}
		}
		i = nameEnd
	}
	return proc, params
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func firstQuotedLiteral(s string) (string, int, bool) {
	start := strings.IndexByte(s, '\'')
	if start < 0 {
		return "", 0, false
	}
	end := strings.IndexByte(s[start+1:], '\'')
	if end < 0 {
		return "", 0, false
	}
	return s[start+1 : start+1+end], start + 1 + end, true
}

// Rewrite is one requested in-place substitution of a parameter's
// OldValue by NewValue; ApplyInPlace pads, truncates or skips it so
// the payload length never changes.
type Rewrite struct {
	Name     string
	OldValue string
	NewValue string
}

// ApplyInPlace performs length-safe substring substitutions of each
// rewrite's UTF-16LE-encoded old value with its new value, padding
// with UTF-16LE spaces when the new value is shorter. A rewrite whose
// new value encodes longer than the old value is skipped unless
// truncate is true, in which case it is truncated to fit. Returns the
// (possibly unmodified) payload and whether any substitution happened.
// First occurrence only, per rewrite, in payload order.
func ApplyInPlace(payload []byte, rewrites []Rewrite, truncate bool) ([]byte, bool) {
	out := append([]byte(nil), payload...)
	changed := false
	for _, rw := range rewrites {
		oldB := EncodeUTF16LE(rw.OldValue)
		newB := EncodeUTF16LE(rw.NewValue)
		if len(oldB) == 0 {
			continue
		}
		idx := indexBytes(out, oldB)
		if idx < 0 {
			continue
		}
		switch {
		case len(newB) < len(oldB):
			padded := make([]byte, len(oldB))
			copy(padded, newB)
			for i := len(newB); i < len(oldB); i += 2 {
				padded[i] = ' '
				padded[i+1] = 0x00
			}
			newB = padded
		case len(newB) > len(oldB):
			if !truncate {
				continue
			}
			// Truncate to an even number of bytes so we don't split a
			// UTF-16LE code unit.
			n := len(oldB)
			if n%2 != 0 {
				n--
			}
			newB = newB[:n]
			if len(newB) < len(oldB) {
				padded := make([]byte, len(oldB))
				copy(padded, newB)
				for i := len(newB); i < len(oldB); i += 2 {
					padded[i] = ' '
					padded[i+1] = 0x00
				}
				newB = padded
			}
		}
		copy(out[idx:idx+len(oldB)], newB)
		changed = true
	}
	return out, changed
}

func indexBytes(haystack, needle []byte) int {
	if len(needle) == 0 {
		return -1
	}
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		if string(haystack[i:i+n]) == string(needle) {
			return i
		}
	}
	return -1
}
