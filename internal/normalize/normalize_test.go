package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuggestKinds(t *testing.T) {
	cases := []struct {
		name string
		in   string
		kind Kind
		out  string
	}{
		{"date dmy slash", "5/3/2024", KindDate, "2024-03-05"},
		{"date iso", "2024-1-2", KindDate, "2024-01-02"},
		{"date dmy dash 2digit year", "5-3-24", KindDate, "2024-03-05"},
		{"datetime iso loose", "2024-1-2 9:5", KindDateTime, "2024-01-02T09:05:00"},
		{"datetime eu", "02-01-2024 09:05:30", KindDateTime, "2024-01-02T09:05:30"},
		{"phone local", "070 123 45 67", KindPhoneSE, "+46701234567"},
		{"phone paren", "+46 (0)70-123 45 67", KindPhoneSE, "+46701234567"},
		{"phone 00 prefix", "0046701234567", KindPhoneSE, "+46701234567"},
		{"phone already intl", "+46701234567", KindPhoneSE, "+46701234567"},
		{"postal", "12 345", KindPostal, "12345"},
		{"email", "TEST@EXAMPLE.COM", KindEmail, "test@example.com"},
		{"decimal comma", "1 234,5", KindDecimal, "1234.5"},
		{"decimal underscore", "1_234.5", KindDecimal, "1234.5"},
		{"uuid braces", "{3F2504E0-4F89-11D3-9A0C-0305E82C3301}", KindUUID, "3f2504e0-4f89-11d3-9a0c-0305e82c3301"},
		{"country name", "Sweden", KindCountryISO, "SE"},
		{"country alpha2", "se", KindCountryISO, "SE"},
		{"orgnr 10", "556677-8899", KindOrgnrSE, "5566778899"},
		{"orgnr 12 century", "16-5566778899", KindOrgnrSE, "5566778899"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Suggest(tc.in)
			require.True(t, ok, "expected a suggestion for %q", tc.in)
			require.Equal(t, tc.kind, got.Kind)
			require.Equal(t, tc.out, got.Normalized)
		})
	}
}

func TestSuggestNoMatch(t *testing.T) {
	_, ok := Suggest("not a known literal shape !!")
	require.False(t, ok)
}

func TestSuggestEmpty(t *testing.T) {
	_, ok := Suggest("   ")
	require.False(t, ok)
}

func TestIdempotence(t *testing.T) {
	inputs := []string{
		"5/3/2024", "2024-1-2 9:5", "070 123 45 67", "12 345",
		"TEST@EXAMPLE.COM", "1 234,5", "{3F2504E0-4F89-11D3-9A0C-0305E82C3301}",
		"Sweden", "16-5566778899",
	}
	for _, in := range inputs {
		first, ok := Suggest(in)
		require.True(t, ok)
		second, ok := Suggest(first.Normalized)
		require.True(t, ok, "normalized form %q should re-normalize", first.Normalized)
		require.Equal(t, first.Normalized, second.Normalized)
	}
}
