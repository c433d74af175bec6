package rpccodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUTF16LERoundTrip(t *testing.T) {
	s := "sp_InsertUser @Email = 'TEST@EXAMPLE.COM', @Age = 42"
	b := EncodeUTF16LE(s)
	require.Equal(t, len(s)*2, len(b))
	require.Equal(t, s, DecodeUTF16LE(b))
}

func TestDecodeUTF16LEOddTrailingByteDropped(t *testing.T) {
	b := EncodeUTF16LE("hi")
	b = append(b, 0xFF)
	require.Equal(t, "hi", DecodeUTF16LE(b))
}

func TestScanFindsProcAndParams(t *testing.T) {
	payload := EncodeUTF16LE(`sp_InsertUser @Email = 'TEST@EXAMPLE.COM', @Age = '42'`)
	proc, params := Scan(payload)
	require.Equal(t, "sp_InsertUser", proc)
	require.Len(t, params, 2)
	require.Equal(t, "@Email", params[0].Name)
	require.Equal(t, "TEST@EXAMPLE.COM", params[0].Value)
	require.Equal(t, "@Age", params[1].Name)
	require.Equal(t, "42", params[1].Value)
}

func TestScanParamWithoutLiteralIsSkipped(t *testing.T) {
	payload := EncodeUTF16LE(`sp_Foo @Id = 7, @Name = 'bob'`)
	_, params := Scan(payload)
	require.Len(t, params, 1)
	require.Equal(t, "@Name", params[0].Name)
	require.Equal(t, "bob", params[0].Value)
}

func TestScanRespectsSearchWindow(t *testing.T) {
	filler := ""
	for i := 0; i < paramSearchWindow+10; i++ {
		filler += "x"
	}
	payload := EncodeUTF16LE(`sp_Foo @Name ` + filler + ` 'too far'`)
	_, params := Scan(payload)
	require.Empty(t, params)
}

func TestScanNoAtSignReturnsEmpty(t *testing.T) {
	proc, params := Scan(EncodeUTF16LE("no parameters here"))
	require.Empty(t, proc)
	require.Empty(t, params)
}

func TestApplyInPlaceShorterValuePadsWithSpaces(t *testing.T) {
	payload := EncodeUTF16LE(`@Email = 'TEST@EXAMPLE.COM'`)
	out, changed := ApplyInPlace(payload, []Rewrite{
		{Name: "@Email", OldValue: "TEST@EXAMPLE.COM", NewValue: "a@example.com"},
	}, false)
	require.True(t, changed)
	require.Equal(t, len(payload), len(out))
	require.Contains(t, DecodeUTF16LE(out), "'a@example.com   '")
}

func TestApplyInPlaceSameLengthSubstitutesExactly(t *testing.T) {
	// "TEST@EXAMPLE.COM" and "test@example.com" are both 16 chars (32 bytes).
	payload := EncodeUTF16LE(`@Email = 'TEST@EXAMPLE.COM'`)
	out, changed := ApplyInPlace(payload, []Rewrite{
		{Name: "@Email", OldValue: "TEST@EXAMPLE.COM", NewValue: "test@example.com"},
	}, false)
	require.True(t, changed)
	require.Equal(t, len(payload), len(out))
	require.Equal(t, `@Email = 'test@example.com'`, DecodeUTF16LE(out))
}

func TestApplyInPlaceLongerValueSkippedWithoutTruncate(t *testing.T) {
	payload := EncodeUTF16LE(`@Code = 'SE'`)
	out, changed := ApplyInPlace(payload, []Rewrite{
		{Name: "@Code", OldValue: "SE", NewValue: "SWEDEN"},
	}, false)
	require.False(t, changed)
	require.Equal(t, payload, out)
}

func TestApplyInPlaceLongerValueTruncatedWhenAllowed(t *testing.T) {
	payload := EncodeUTF16LE(`@Code = 'SE'`)
	out, changed := ApplyInPlace(payload, []Rewrite{
		{Name: "@Code", OldValue: "SE", NewValue: "SWEDEN"},
	}, true)
	require.True(t, changed)
	require.Equal(t, len(payload), len(out))
}

func TestApplyInPlacePreservesPayloadLengthInvariant(t *testing.T) {
	payload := EncodeUTF16LE(`sp_InsertUser @Email = 'TEST@EXAMPLE.COM', @Age = '42'`)
	for _, tc := range []Rewrite{
		{Name: "@Email", OldValue: "TEST@EXAMPLE.COM", NewValue: "test@example.com"},
		{Name: "@Age", OldValue: "42", NewValue: "43"},
	} {
		out, _ := ApplyInPlace(payload, []Rewrite{tc}, false)
		require.Equal(t, len(payload), len(out))
	}
}

func TestApplyInPlaceMissingOldValueLeavesPayloadUnchanged(t *testing.T) {
	payload := EncodeUTF16LE(`@Email = 'a@b.com'`)
	out, changed := ApplyInPlace(payload, []Rewrite{
		{Name: "@Email", OldValue: "nope@nowhere.com", NewValue: "x@y.com"},
	}, false)
	require.False(t, changed)
	require.Equal(t, payload, out)
}

func TestApplyInPlaceScenarioEmailAutocorrect(t *testing.T) {
	// Mirrors the documented in-place autocorrect scenario: a 16-char
	// (32-byte) value replaced by another 16-char value of equal length.
	payload := EncodeUTF16LE(`exec sp_Signup @Email = 'TEST@EXAMPLE.COM'`)
	require.Equal(t, 32, len(EncodeUTF16LE("TEST@EXAMPLE.COM")))
	out, changed := ApplyInPlace(payload, []Rewrite{
		{Name: "@Email", OldValue: "TEST@EXAMPLE.COM", NewValue: "test@example.com"},
	}, false)
	require.True(t, changed)
	require.Equal(t, len(payload), len(out))
	require.Equal(t, `exec sp_Signup @Email = 'test@example.com'`, DecodeUTF16LE(out))
}

func TestBuildAndEncodeTypedValue(t *testing.T) {
	payload := Build("sp_InsertUser", []BuildParam{
		{Name: "@Email", Value: "test@example.com", Type: TypeNVarChar},
		{Name: "@Age", Value: "42", Type: TypeInt},
	})
	require.NotEmpty(t, payload)
	require.Equal(t, byte(len("sp_InsertUser")), payload[0])
}

func TestFallbackType(t *testing.T) {
	require.Equal(t, TypeInt, FallbackType(true))
	require.Equal(t, TypeNVarChar, FallbackType(false))
}
