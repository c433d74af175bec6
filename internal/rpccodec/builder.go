package rpccodec

import (
	"encoding/binary"
	"math"
)

// ParamType is the narrow typed subset the repack builder supports.
type ParamType byte

const (
	TypeNVarChar ParamType = iota
	TypeInt
	TypeBit
	TypeDecimal
	TypeDate
	TypeTime
	TypeDateTime2
	TypeDateTimeOffset
	TypeUniqueIdentifier
	TypeVarBinary
)

// TDS type ids used by the repack builder, per the TDS type token table.
const (
	tdsTypeIntN      = 0x26
	tdsTypeBitN      = 0x68
	tdsTypeDecimalN  = 0x6A
	tdsTypeDateN     = 0x28
	tdsTypeTimeN     = 0x29
	tdsTypeDateTime2 = 0x2A
	tdsTypeDateTimeOffsetN = 0x2B
	tdsTypeGUID      = 0x24
	tdsTypeBigVarBin = 0xA5
	tdsTypeNVarChar  = 0xE7
)

// TypeResolver maps a procedure + parameter name to the ParamType to
// use when repacking; it is the external proc→param→type mapping from
// §4.4, optionally backed by RPC_PARAM_TYPES_PATH.
type TypeResolver interface {
	ResolveType(proc, param string) (ParamType, bool)
}

// BuildParam is one parameter to repack.
type BuildParam struct {
	Name  string // includes leading '@'
	Value string
	Type  ParamType
}

// FallbackType picks NVARCHAR for strings or INT when the normalizer's
// reported kind is numeric, used when a TypeResolver has no mapping.
func FallbackType(isNumeric bool) ParamType {
	if isNumeric {
		return TypeInt
	}
	return TypeNVarChar
}

// Build reconstructs an RPC payload from scratch for the supported
// typed subset: a 1-byte-length-prefixed ASCII proc name, 2 zero
// option-flag bytes, then per parameter a 1-byte name length + ASCII
// name, 1 status byte (0 = input), 4 zero user-type bytes, 2 zero flag
// bytes, 1 TDS type id byte, and type-specific length/value bytes.
func Build(proc string, params []BuildParam) []byte {
	var out []byte
	out = append(out, byte(len(proc)))
	out = append(out, []byte(proc)...)
	out = append(out, 0x00, 0x00) // option flags

	for _, p := range params {
		out = append(out, byte(len(p.Name)))
		out = append(out, []byte(p.Name)...)
		out = append(out, 0x00)             // status: input
		out = append(out, 0x00, 0x00, 0x00, 0x00) // user type
		out = append(out, 0x00, 0x00)       // flags
		out = append(out, encodeTypedValue(p.Type, p.Value)...)
	}
	return out
}

func encodeTypedValue(t ParamType, value string) []byte {
	switch t {
	case TypeInt:
		out := []byte{tdsTypeIntN, 4, 4}
		n := parseIntSafe(value)
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(int32(n)))
		return append(out, buf...)
	case TypeBit:
		v := byte(0)
		if value == "1" || value == "true" || value == "True" {
			v = 1
		}
		return append([]byte{tdsTypeBitN, 1, 1}, v)
	case TypeDecimal:
		f := parseFloatSafe(value)
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
		return append([]byte{tdsTypeDecimalN, 17, 17}, buf...)
	case TypeDate:
		b := EncodeUTF16LE(value)
		return append([]byte{tdsTypeDateN, byte(len(b))}, b...)
	case TypeTime:
		b := EncodeUTF16LE(value)
		return append([]byte{tdsTypeTimeN, byte(len(b))}, b...)
	case TypeDateTime2:
		b := EncodeUTF16LE(value)
		return append([]byte{tdsTypeDateTime2, byte(len(b))}, b...)
	case TypeDateTimeOffset:
		b := EncodeUTF16LE(value)
		return append([]byte{tdsTypeDateTimeOffsetN, byte(len(b))}, b...)
	case TypeUniqueIdentifier:
		b := []byte(value)
		return append([]byte{tdsTypeGUID, 16}, pad(b, 16)...)
	case TypeVarBinary:
		b := []byte(value)
		ln := make([]byte, 2)
		binary.LittleEndian.PutUint16(ln, uint16(len(b)))
		return append(append([]byte{tdsTypeBigVarBin}, ln...), b...)
	default: // NVARCHAR
		b := EncodeUTF16LE(value)
		ln := make([]byte, 2)
		binary.LittleEndian.PutUint16(ln, uint16(len(b)))
		return append(append([]byte{tdsTypeNVarChar}, ln...), b...)
	}
}

func pad(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func parseIntSafe(s string) int64 {
	neg := false
	var n int64
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	if neg {
		n = -n
	}
	return n
}

func parseFloatSafe(s string) float64 {
	var whole, frac int64
	var fracDigits int
	neg := false
	seenDot := false
	for i, r := range s {
		switch {
		case i == 0 && r == '-':
			neg = true
		case r == '.':
			seenDot = true
		case r >= '0' && r <= '9':
			if seenDot {
				frac = frac*10 + int64(r-'0')
				fracDigits++
			} else {
				whole = whole*10 + int64(r-'0')
			}
		}
	}
	f := float64(whole)
	if fracDigits > 0 {
		f += float64(frac) / math.Pow(10, float64(fracDigits))
	}
	if neg {
		f = -f
	}
	return f
}
