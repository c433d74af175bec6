package sqlshallow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInsertSingleRow(t *testing.T) {
	sql := `INSERT INTO dbo.Users (Email, Age) VALUES ('TEST@EXAMPLE.COM', 42)`
	st, ok := Parse(sql)
	require.True(t, ok)
	require.Equal(t, KindInsert, st.Kind)
	require.Equal(t, "dbo.Users", st.Table)
	require.Equal(t, []string{"Email", "Age"}, st.Columns)
	require.Equal(t, [][]string{{"TEST@EXAMPLE.COM", "42"}}, st.Rows)
}

func TestParseInsertBracketedQualifiers(t *testing.T) {
	sql := `INSERT INTO [dbo].[Users] ([Email]) VALUES ('a@b.com')`
	st, ok := Parse(sql)
	require.True(t, ok)
	require.Equal(t, "dbo.Users", st.Table)
	require.Equal(t, []string{"Email"}, st.Columns)
}

func TestParseInsertMultiRow(t *testing.T) {
	sql := `INSERT INTO dbo.Users (Email) VALUES ('a@b.com'), ('c@d.com')`
	st, ok := Parse(sql)
	require.True(t, ok)
	require.Equal(t, [][]string{{"a@b.com"}, {"c@d.com"}}, st.Rows)
}

func TestParseUpdate(t *testing.T) {
	sql := `UPDATE dbo.Users SET Email = 'a@b.com', Age = 30 WHERE Id = 1`
	st, ok := Parse(sql)
	require.True(t, ok)
	require.Equal(t, KindUpdate, st.Kind)
	require.Equal(t, "dbo.Users", st.Table)
	require.Equal(t, []string{"Email", "Age"}, st.Columns)
	require.Equal(t, [][]string{{"a@b.com", "30"}}, st.Rows)
}

func TestParseSelect(t *testing.T) {
	sql := `SELECT Email, Age FROM dbo.Users WHERE Age > 18`
	st, ok := Parse(sql)
	require.True(t, ok)
	require.Equal(t, KindSelect, st.Kind)
	require.Equal(t, "dbo.Users", st.Table)
	require.Equal(t, []string{"Email", "Age"}, st.Columns)
}

func TestParseSelectStar(t *testing.T) {
	st, ok := Parse(`SELECT * FROM dbo.Users`)
	require.True(t, ok)
	require.Equal(t, []string{"*"}, st.Columns)
}

func TestParseBulkDetectionOnly(t *testing.T) {
	st, ok := Parse(`BULK INSERT dbo.Staging FROM 'C:\data\file.csv' WITH (FORMAT='CSV')`)
	require.True(t, ok)
	require.Equal(t, KindBulk, st.Kind)
	require.Equal(t, "dbo.Staging", st.Table)
}

func TestParseMergeExtractionOnly(t *testing.T) {
	sql := `MERGE INTO dbo.Target AS t USING dbo.Source AS s ON t.Id = s.Id ` +
		`WHEN MATCHED THEN UPDATE SET t.Val = s.Val ` +
		`WHEN NOT MATCHED THEN INSERT (Id, Val) VALUES (s.Id, s.Val)`
	st, ok := Parse(sql)
	require.True(t, ok)
	require.Equal(t, KindMerge, st.Kind)
	require.Equal(t, "dbo.Target", st.Table)
	require.Equal(t, []string{"Id", "Val"}, st.Columns)
}

func TestParseDeleteDetectionOnly(t *testing.T) {
	st, ok := Parse(`DELETE FROM dbo.Users WHERE Id = 1`)
	require.True(t, ok)
	require.Equal(t, KindDelete, st.Kind)
	require.Equal(t, "dbo.Users", st.Table)
}

func TestParseUnrecognizedPassthrough(t *testing.T) {
	_, ok := Parse(`EXEC sp_who`)
	require.False(t, ok)
}

func TestParseDoublyQuotedLiteralUnrecognized(t *testing.T) {
	// A literal containing '' cannot be safely split; per spec this
	// must be treated as unrecognized (pass through).
	_, ok := Parse(`INSERT INTO dbo.Users (Name) VALUES ('O''Brien')`)
	require.False(t, ok)
}

func TestReconstructInsertRoundTrip(t *testing.T) {
	sql := `INSERT INTO dbo.Users (Email, Age) VALUES ('TEST@EXAMPLE.COM', 42)`
	st, ok := Parse(sql)
	require.True(t, ok)
	out, ok := ReconstructInsert(sql, st.Rows[0])
	require.True(t, ok)
	require.Equal(t, sql, out)
}

func TestReconstructInsertNewValues(t *testing.T) {
	sql := `INSERT INTO dbo.Users (Email) VALUES ('TEST@EXAMPLE.COM')`
	out, ok := ReconstructInsert(sql, []string{"test@example.com"})
	require.True(t, ok)
	require.Equal(t, `INSERT INTO dbo.Users (Email) VALUES ('test@example.com')`, out)
}

func TestReconstructInsertRejectsMultiRow(t *testing.T) {
	sql := `INSERT INTO dbo.Users (Email) VALUES ('a@b.com'), ('c@d.com')`
	_, ok := ReconstructInsert(sql, []string{"x@y.com"})
	require.False(t, ok)
}

func TestReconstructMultiRowInsert(t *testing.T) {
	sql := `INSERT INTO dbo.Users (Email) VALUES ('a@b.com'), ('c@d.com')`
	out, ok := ReconstructMultiRowInsert(sql, [][]string{{"x@y.com"}, {"z@w.com"}})
	require.True(t, ok)
	require.Equal(t, `INSERT INTO dbo.Users (Email) VALUES ('x@y.com'), ('z@w.com')`, out)
}

func TestReconstructUpdate(t *testing.T) {
	sql := `UPDATE dbo.Users SET Email = 'TEST@EXAMPLE.COM' WHERE Id = 1`
	out, ok := ReconstructUpdate(sql, []string{"Email"}, []string{"test@example.com"})
	require.True(t, ok)
	require.Equal(t, `UPDATE dbo.Users SET Email = 'test@example.com' WHERE Id = 1`, out)
}

func TestQuoteValueEscapesQuotes(t *testing.T) {
	require.Equal(t, `'O''Brien'`, QuoteValue("O'Brien"))
	require.Equal(t, `42`, QuoteValue("42"))
	require.Equal(t, `-3.5`, QuoteValue("-3.5"))
}
