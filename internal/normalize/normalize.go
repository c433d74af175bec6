// Package normalize implements the value normalization suggestor: a
// pure, ordered pipeline of single-kind normalizers that canonicalize a
// literal into one known shape (date, phone, email, ...).
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies which normalizer accepted an input.
type Kind string

const (
	KindDate       Kind = "date"
	KindDateTime   Kind = "datetime"
	KindPhoneSE    Kind = "phone_se"
	KindPostal     Kind = "postal"
	KindEmail      Kind = "email"
	KindDecimal    Kind = "decimal"
	KindUUID       Kind = "uuid"
	KindCountryISO Kind = "country_iso"
	KindOrgnrSE    Kind = "orgnr_se"
)

// Suggestion is the outcome of a successful normalization.
type Suggestion struct {
	Kind       Kind
	Normalized string
	Hint       string
}

type normalizerFunc func(string) (Suggestion, bool)

// pipeline order per spec: date, datetime, phone_se, postal, email,
// decimal, uuid, country_iso, orgnr_se.
var pipeline = []normalizerFunc{
	normalizeDate,
	normalizeDateTime,
	normalizePhoneSE,
	normalizePostal,
	normalizeEmail,
	normalizeDecimal,
	normalizeUUID,
	normalizeCountryISO,
	normalizeOrgnrSE,
}

// Suggest runs the ordered pipeline and returns the first normalizer
// that accepts the (trimmed) input.
func Suggest(value string) (Suggestion, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Suggestion{}, false
	}
	for _, fn := range pipeline {
		if s, ok := fn(trimmed); ok {
			return s, true
		}
	}
	return Suggestion{}, false
}

// --- date ---

var (
	reDashSlashDate = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2}|\d{4})$`)
	reISODate       = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
)

func normalizeDate(v string) (Suggestion, bool) {
	if m := reISODate.FindStringSubmatch(v); m != nil {
		y, mo, d := m[1], atoi(m[2]), atoi(m[3])
		if !validYMD(atoi(y), mo, d) {
			return Suggestion{}, false
		}
		return Suggestion{Kind: KindDate, Normalized: fmt.Sprintf("%s-%02d-%02d", y, mo, d)}, true
	}
	if m := reDashSlashDate.FindStringSubmatch(v); m != nil {
		day, month := atoi(m[1]), atoi(m[2])
		year := yearFrom(m[3])
		if !validYMD(year, month, day) {
			return Suggestion{}, false
		}
		return Suggestion{Kind: KindDate, Normalized: fmt.Sprintf("%04d-%02d-%02d", year, month, day)}, true
	}
	return Suggestion{}, false
}

func yearFrom(s string) int {
	y := atoi(s)
	if len(s) == 2 {
		y += 2000
	}
	return y
}

func validYMD(y, m, d int) bool {
	if y < 1 || m < 1 || m > 12 || d < 1 || d > 31 {
		return false
	}
	return true
}

// --- datetime ---

var (
	reDateTimeLoose = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})[T ](\d{1,2}):(\d{1,2})(?::(\d{2})(?:\.\d+)?)?$`)
	reDateTimeEU    = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4}) (\d{1,2}):(\d{2})(?::(\d{2}))?$`)
)

func normalizeDateTime(v string) (Suggestion, bool) {
	if m := reDateTimeLoose.FindStringSubmatch(v); m != nil {
		y, mo, d := atoi(m[1]), atoi(m[2]), atoi(m[3])
		hh, mm := atoi(m[4]), atoi(m[5])
		ss := 0
		if m[6] != "" {
			ss = atoi(m[6])
		}
		if !validYMD(y, mo, d) || hh > 23 || mm > 59 || ss > 59 {
			return Suggestion{}, false
		}
		return Suggestion{Kind: KindDateTime, Normalized: fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", y, mo, d, hh, mm, ss)}, true
	}
	if m := reDateTimeEU.FindStringSubmatch(v); m != nil {
		d, mo, y := atoi(m[1]), atoi(m[2]), atoi(m[3])
		hh, mm := atoi(m[4]), atoi(m[5])
		ss := 0
		if m[6] != "" {
			ss = atoi(m[6])
		}
		if !validYMD(y, mo, d) || hh > 23 || mm > 59 || ss > 59 {
			return Suggestion{}, false
		}
		return Suggestion{Kind: KindDateTime, Normalized: fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", y, mo, d, hh, mm, ss)}, true
	}
	return Suggestion{}, false
}

// --- phone (SE) ---

var (
	reDigitsPlus = regexp.MustCompile(`[()\s-]`)
)

func normalizePhoneSE(v string) (Suggestion, bool) {
	s := strings.ReplaceAll(v, " ", "")
	s = strings.ReplaceAll(s, "(0)", "")
	s = reDigitsPlus.ReplaceAllString(s, "")
	switch {
	case strings.HasPrefix(s, "+46"):
		// already canonical prefix
	case strings.HasPrefix(s, "0046"):
		s = "+46" + s[4:]
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case strings.HasPrefix(s, "0"):
		s = "+46" + s[1:]
	default:
		return Suggestion{}, false
	}
	digits := s[1:] // drop leading '+'
	if !allDigits(digits) || len(digits) < 10 || len(digits) > 13 {
		return Suggestion{}, false
	}
	return Suggestion{Kind: KindPhoneSE, Normalized: s}, true
}

// --- postal ---

func normalizePostal(v string) (Suggestion, bool) {
	s := strings.ReplaceAll(v, " ", "")
	if len(s) != 5 || !allDigits(s) {
		return Suggestion{}, false
	}
	return Suggestion{Kind: KindPostal, Normalized: s}, true
}

// --- email ---

var reEmail = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func normalizeEmail(v string) (Suggestion, bool) {
	s := strings.ToLower(v)
	if strings.ContainsAny(s, " \t") || !reEmail.MatchString(s) {
		return Suggestion{}, false
	}
	at := strings.LastIndex(s, "@")
	local, domain := s[:at], s[at+1:]
	if local == "" || domain == "" || strings.Count(local, "@") > 0 {
		return Suggestion{}, false
	}
	return Suggestion{Kind: KindEmail, Normalized: s}, true
}

// --- decimal ---

var reDecimal = regexp.MustCompile(`^-?\d+([.,]\d+)?$`)

func normalizeDecimal(v string) (Suggestion, bool) {
	s := strings.ReplaceAll(v, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	if !reDecimal.MatchString(s) {
		return Suggestion{}, false
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			return Suggestion{}, false
		}
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Suggestion{}, false
	}
	out := strconv.FormatFloat(f, 'f', -1, 64)
	return Suggestion{Kind: KindDecimal, Normalized: out}, true
}

// --- uuid ---

var reUUID = regexp.MustCompile(`^([0-9a-fA-F]{8})-([0-9a-fA-F]{4})-([0-9a-fA-F]{4})-([0-9a-fA-F]{4})-([0-9a-fA-F]{12})$`)

func normalizeUUID(v string) (Suggestion, bool) {
	s := strings.Trim(v, "{}()")
	if !reUUID.MatchString(s) {
		return Suggestion{}, false
	}
	return Suggestion{Kind: KindUUID, Normalized: strings.ToLower(s)}, true
}

// --- country_iso ---

var countryNames = map[string]string{
	"sweden":         "SE",
	"sverige":        "SE",
	"united states":  "US",
	"usa":            "US",
	"united kingdom": "GB",
	"storbritannien": "GB",
	"germany":        "DE",
	"tyskland":       "DE",
	"norway":         "NO",
	"norge":          "NO",
	"denmark":        "DK",
	"danmark":        "DK",
	"finland":        "FI",
}

func normalizeCountryISO(v string) (Suggestion, bool) {
	s := strings.TrimSpace(v)
	if len(s) == 2 && isAlpha(s) {
		return Suggestion{Kind: KindCountryISO, Normalized: strings.ToUpper(s)}, true
	}
	if code, ok := countryNames[strings.ToLower(s)]; ok {
		return Suggestion{Kind: KindCountryISO, Normalized: code}, true
	}
	return Suggestion{}, false
}

// --- orgnr (SE) ---

func normalizeOrgnrSE(v string) (Suggestion, bool) {
	s := strings.ReplaceAll(v, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	if !allDigits(s) {
		return Suggestion{}, false
	}
	switch len(s) {
	case 10:
		return Suggestion{Kind: KindOrgnrSE, Normalized: s}, true
	case 12:
		if strings.HasPrefix(s, "16") {
			return Suggestion{Kind: KindOrgnrSE, Normalized: s[2:]}, true
		}
	}
	return Suggestion{}, false
}

// --- helpers ---

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
