// Package sqlshallow is a conservative, regex-driven SQL extractor and
// reconstructor. It is not a full SQL parser: its contract is "if
// recognized, rewrite is safe; otherwise pass through unrecognized."
package sqlshallow

import (
	"regexp"
	"strings"
)

// Kind identifies which shallow shape a statement matched.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindMerge  Kind = "merge"
	KindBulk   Kind = "bulk"
	KindSelect Kind = "select"
	KindDelete Kind = "delete"
)

// Statement is the shallow extraction of a recognized SQL shape.
type Statement struct {
	Kind    Kind
	Table   string
	Columns []string
	// Rows holds one slice of value literals (as written, quotes
	// stripped; statements containing '' are never recognized, so no
	// un-escaping happens) per VALUES tuple; for UPDATE it holds
	// exactly one row aligned with Columns.
	Rows [][]string
}

var (
	reInsert = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+([\w.\[\]]+)\s*\(([^)]*)\)\s*VALUES\s*(.+?)\s*;?\s*$`)
	reUpdate = regexp.MustCompile(`(?is)^\s*UPDATE\s+([\w.\[\]]+)\s+SET\s+(.+?)\s+WHERE\s+(.+?)\s*;?\s*$`)
	reMerge  = regexp.MustCompile(`(?is)^\s*MERGE\s+INTO\s+([\w.\[\]]+).*?WHEN\s+NOT\s+MATCHED\s+THEN\s+INSERT\s*\(([^)]*)\)`)
	reBulk   = regexp.MustCompile(`(?is)^\s*BULK\s+INSERT\s+([\w.\[\]]+)\s+FROM\s+'([^']*)'`)
	reSelect = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)\s+FROM\s+([\w.\[\]]+)`)
	reDelete = regexp.MustCompile(`(?is)^\s*DELETE\s+FROM\s+([\w.\[\]]+)\s+WHERE\s+(.+?)\s*;?\s*$`)

	reValuesTuple = regexp.MustCompile(`\(([^()]*)\)`)
)

// containsDoublyQuotedLiteral reports whether s contains a `''` run,
// which the shallow splitter cannot safely distinguish from
// open+close; per spec such input is treated as unrecognized.
func containsDoublyQuotedLiteral(s string) bool {
	return strings.Contains(s, "''")
}

// Parse dispatches to the first recognized shape. It returns ok=false
// for anything not matching one of the documented patterns.
func Parse(sql string) (Statement, bool) {
	if containsDoublyQuotedLiteral(sql) {
		return Statement{}, false
	}
	if st, ok := parseInsert(sql); ok {
		return st, true
	}
	if st, ok := parseUpdate(sql); ok {
		return st, true
	}
	if st, ok := parseMerge(sql); ok {
		return st, true
	}
	if st, ok := parseBulk(sql); ok {
		return st, true
	}
	if st, ok := parseDelete(sql); ok {
		return st, true
	}
	if st, ok := parseSelect(sql); ok {
		return st, true
	}
	return Statement{}, false
}

func parseInsert(sql string) (Statement, bool) {
	m := reInsert.FindStringSubmatch(sql)
	if m == nil {
		return Statement{}, false
	}
	cols := splitIdentifiers(m[2])
	rows, ok := splitValueTuples(m[3])
	if !ok {
		return Statement{}, false
	}
	return Statement{Kind: KindInsert, Table: normalizeQualified(m[1]), Columns: cols, Rows: rows}, true
}

func parseUpdate(sql string) (Statement, bool) {
	m := reUpdate.FindStringSubmatch(sql)
	if m == nil {
		return Statement{}, false
	}
	cols, vals, ok := splitAssignments(m[2])
	if !ok {
		return Statement{}, false
	}
	return Statement{Kind: KindUpdate, Table: normalizeQualified(m[1]), Columns: cols, Rows: [][]string{vals}}, true
}

func parseMerge(sql string) (Statement, bool) {
	m := reMerge.FindStringSubmatch(sql)
	if m == nil {
		return Statement{}, false
	}
	cols := splitIdentifiers(m[2])
	return Statement{Kind: KindMerge, Table: normalizeQualified(m[1]), Columns: cols}, true
}

func parseBulk(sql string) (Statement, bool) {
	m := reBulk.FindStringSubmatch(sql)
	if m == nil {
		return Statement{}, false
	}
	return Statement{Kind: KindBulk, Table: normalizeQualified(m[1])}, true
}

func parseSelect(sql string) (Statement, bool) {
	m := reSelect.FindStringSubmatch(sql)
	if m == nil {
		return Statement{}, false
	}
	colsPart := strings.TrimSpace(m[1])
	var cols []string
	if colsPart == "*" {
		cols = []string{"*"}
	} else {
		cols = splitIdentifiers(colsPart)
	}
	return Statement{Kind: KindSelect, Table: normalizeQualified(m[2]), Columns: cols}, true
}

func parseDelete(sql string) (Statement, bool) {
	m := reDelete.FindStringSubmatch(sql)
	if m == nil {
		return Statement{}, false
	}
	return Statement{Kind: KindDelete, Table: normalizeQualified(m[1])}, true
}

// normalizeQualified turns `[schema].[table].[col]` into `schema.table.col`.
func normalizeQualified(s string) string {
	s = strings.ReplaceAll(s, "[", "")
	s = strings.ReplaceAll(s, "]", "")
	return strings.TrimSpace(s)
}

func splitIdentifiers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = normalizeQualified(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitTopLevel splits s on commas that are not inside a single-quoted
// string, returning false if a literal contains an unescaped quote
// ambiguity (a lone `'` that never closes).
func splitTopLevel(s string) ([]string, bool) {
	var parts []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			cur.WriteByte(c)
		case c == ',' && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, false
	}
	parts = append(parts, cur.String())
	return parts, true
}

var reNumeric = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// unquoteValue converts one split token (still possibly quoted) into
// its literal value, and reports whether it was a quoted string.
func unquoteValue(tok string) (value string, wasString bool, ok bool) {
	tok = strings.TrimSpace(tok)
	if strings.HasPrefix(tok, "'") && strings.HasSuffix(tok, "'") && len(tok) >= 2 {
		inner := tok[1 : len(tok)-1]
		if strings.Contains(inner, "'") {
			return "", false, false
		}
		return inner, true, true
	}
	if reNumeric.MatchString(tok) {
		return tok, false, true
	}
	// Unrecognized literal shape (e.g. a function call, NULL, a bare
	// identifier) — still pass the raw token through unquoted so
	// extraction does not fail the whole statement over cosmetic cases
	// the policy engine will not rewrite anyway.
	return tok, false, true
}

func splitValuesRow(s string) ([]string, bool) {
	toks, ok := splitTopLevel(s)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		v, _, ok := unquoteValue(t)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// splitValueTuples parses one or more `(v1, v2), (v3, v4)` tuples.
func splitValueTuples(s string) ([][]string, bool) {
	s = strings.TrimSpace(s)
	matches := reValuesTuple.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return nil, false
	}
	var rows [][]string
	for _, m := range matches {
		inner := s[m[2]:m[3]]
		row, ok := splitValuesRow(inner)
		if !ok {
			return nil, false
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, false
	}
	return rows, true
}

// splitAssignments parses `col1 = v1, col2 = v2, ...` from an UPDATE SET clause.
func splitAssignments(s string) (cols []string, vals []string, ok bool) {
	parts, ok := splitTopLevel(s)
	if !ok {
		return nil, nil, false
	}
	for _, p := range parts {
		eq := strings.Index(p, "=")
		if eq < 0 {
			return nil, nil, false
		}
		col := normalizeQualified(strings.TrimSpace(p[:eq]))
		valTok := strings.TrimSpace(p[eq+1:])
		v, _, vok := unquoteValue(valTok)
		if !vok {
			return nil, nil, false
		}
		cols = append(cols, col)
		vals = append(vals, v)
	}
	if len(cols) == 0 {
		return nil, nil, false
	}
	return cols, vals, true
}

// QuoteValue re-encodes a literal for SQL output: numeric-looking
// values are emitted unquoted, everything else is single-quoted with
// internal quotes doubled.
func QuoteValue(v string) string {
	if reNumeric.MatchString(v) {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func joinValues(vals []string) string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = QuoteValue(v)
	}
	return strings.Join(out, ", ")
}

// ReconstructInsert preserves the prefix through "VALUES (" and the
// suffix after the matching ")", substituting newValues for a
// single-row INSERT. Returns ok=false if sql does not match the
// recognized single-row INSERT shape.
func ReconstructInsert(sql string, newValues []string) (string, bool) {
	m := reInsert.FindStringSubmatchIndex(sql)
	if m == nil {
		return "", false
	}
	valsStart, valsEnd := m[6], m[7]
	valsSegment := sql[valsStart:valsEnd]
	tupleIdx := reValuesTuple.FindStringSubmatchIndex(valsSegment)
	if tupleIdx == nil {
		return "", false
	}
	// Only safe for single-row INSERT; multi-row must use ReconstructMultiRowInsert.
	if len(reValuesTuple.FindAllStringIndex(valsSegment, -1)) != 1 {
		return "", false
	}
	openParen := valsStart + tupleIdx[2] - 1 // position of '(' itself
	closeParen := valsStart + tupleIdx[3] + 1 // position just after ')'
	prefix := sql[:openParen+1]
	suffix := sql[closeParen-1:]
	return prefix + joinValues(newValues) + suffix, true
}

// ReconstructUpdate zips cols with newValues to rebuild the SET
// clause, preserving everything through "WHERE ..." unchanged.
func ReconstructUpdate(sql string, cols []string, newValues []string) (string, bool) {
	m := reUpdate.FindStringSubmatchIndex(sql)
	if m == nil || len(cols) != len(newValues) {
		return "", false
	}
	setStart, setEnd := m[4], m[5]
	assignments := make([]string, len(cols))
	for i, c := range cols {
		assignments[i] = c + " = " + QuoteValue(newValues[i])
	}
	return sql[:setStart] + strings.Join(assignments, ", ") + sql[setEnd:], true
}

// ReconstructMultiRowInsert regenerates the full `(v1, v2), (v3, v4)`
// VALUES list for a multi-row INSERT, preserving prefix/suffix.
func ReconstructMultiRowInsert(sql string, rows [][]string) (string, bool) {
	m := reInsert.FindStringSubmatchIndex(sql)
	if m == nil {
		return "", false
	}
	valsStart, valsEnd := m[6], m[7]
	tuples := make([]string, len(rows))
	for i, row := range rows {
		tuples[i] = "(" + joinValues(row) + ")"
	}
	return sql[:valsStart] + strings.Join(tuples, ", ") + sql[valsEnd:], true
}
