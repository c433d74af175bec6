package policy

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateTableMatch(t *testing.T) {
	rs := NewRuleSet([]Rule{
		{ID: "r1", Target: TargetTable, Selector: "dbo.Users", Action: ActionBlock},
	})
	d := Evaluate(rs, Event{Table: "dbo.Users"})
	require.True(t, d.Matched)
	require.Equal(t, ActionBlock, d.Action)
	require.Equal(t, "r1", d.Rule.ID)
}

func TestEvaluateTableMatchCaseInsensitive(t *testing.T) {
	rs := NewRuleSet([]Rule{{ID: "r1", Target: TargetTable, Selector: "DBO.USERS", Action: ActionBlock}})
	d := Evaluate(rs, Event{Table: "dbo.users"})
	require.True(t, d.Matched)
}

func TestEvaluateColumnMatchLastSegment(t *testing.T) {
	rs := NewRuleSet([]Rule{{ID: "r1", Target: TargetColumn, Selector: "Email", Action: ActionAutocorrect}})
	d := Evaluate(rs, Event{Column: "dbo.Users.Email"})
	require.True(t, d.Matched)
	require.Equal(t, ActionAutocorrect, d.Action)
}

func TestEvaluateColumnMatchStripsAtPrefix(t *testing.T) {
	rs := NewRuleSet([]Rule{{ID: "r1", Target: TargetColumn, Selector: "Email", Action: ActionRPCAutocorrectInplace}})
	d := Evaluate(rs, Event{Column: "@Email"})
	require.True(t, d.Matched)
}

func TestEvaluatePatternMatchSubstring(t *testing.T) {
	rs := NewRuleSet([]Rule{{ID: "r1", Target: TargetPattern, Selector: "xp_cmdshell", Action: ActionBlock}})
	d := Evaluate(rs, Event{Text: "EXEC xp_cmdshell 'dir'"})
	require.True(t, d.Matched)
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	rs := NewRuleSet([]Rule{
		{ID: "first", Target: TargetTable, Selector: "dbo.Users", Action: ActionBlock},
		{ID: "second", Target: TargetTable, Selector: "dbo.Users", Action: ActionAutocorrect},
	})
	d := Evaluate(rs, Event{Table: "dbo.Users"})
	require.Equal(t, "first", d.Rule.ID)
}

func TestEvaluateNoMatchDefaultsAllow(t *testing.T) {
	rs := NewRuleSet([]Rule{{ID: "r1", Target: TargetTable, Selector: "dbo.Orders", Action: ActionBlock}})
	d := Evaluate(rs, Event{Table: "dbo.Users"})
	require.False(t, d.Matched)
	require.Equal(t, ActionAllow, d.Action)
}

func TestEvaluateEnvironmentGating(t *testing.T) {
	rs := NewRuleSet([]Rule{
		{ID: "r1", Target: TargetTable, Selector: "dbo.Users", Action: ActionBlock, ApplyInEnvs: []string{"prod"}},
	})
	d := Evaluate(rs, Event{Table: "dbo.Users", Env: "staging"})
	require.False(t, d.Matched)

	d2 := Evaluate(rs, Event{Table: "dbo.Users", Env: "prod"})
	require.True(t, d2.Matched)
	require.Equal(t, ActionBlock, d2.Action)
}

func TestEvaluateDisabledRuleIsSkipped(t *testing.T) {
	disabled := false
	rs := NewRuleSet([]Rule{
		{ID: "r1", Target: TargetTable, Selector: "dbo.Users", Action: ActionBlock, Enabled: &disabled},
		{ID: "r2", Target: TargetTable, Selector: "dbo.Users", Action: ActionAllow},
	})
	d := Evaluate(rs, Event{Table: "dbo.Users"})
	require.True(t, d.Matched)
	require.Equal(t, "r2", d.Rule.ID)
}

func TestEvaluateEnabledOmittedDefaultsTrue(t *testing.T) {
	rs := NewRuleSet([]Rule{
		{ID: "r1", Target: TargetTable, Selector: "dbo.Users", Action: ActionBlock},
	})
	d := Evaluate(rs, Event{Table: "dbo.Users"})
	require.True(t, d.Matched)
	require.Equal(t, "r1", d.Rule.ID)
}

func TestGateBelowThresholdDemotesToAllow(t *testing.T) {
	d := Decision{Matched: true, Rule: Rule{ID: "r1", Action: ActionBlock, MinHitsToEnforce: 3}, Action: ActionBlock}
	effective, gated := Gate(d, 2)
	require.True(t, gated)
	require.Equal(t, ActionAllow, effective)
}

func TestGateAtThresholdEnforces(t *testing.T) {
	d := Decision{Matched: true, Rule: Rule{ID: "r1", Action: ActionBlock, MinHitsToEnforce: 3}, Action: ActionBlock}
	effective, gated := Gate(d, 3)
	require.False(t, gated)
	require.Equal(t, ActionBlock, effective)
}

func TestGateNoThresholdAlwaysEnforces(t *testing.T) {
	d := Decision{Matched: true, Rule: Rule{ID: "r1", Action: ActionBlock}, Action: ActionBlock}
	effective, gated := Gate(d, 0)
	require.False(t, gated)
	require.Equal(t, ActionBlock, effective)
}

func TestGateUnmatchedIsNeverGated(t *testing.T) {
	d := Decision{Matched: false, Action: ActionAllow}
	effective, gated := Gate(d, 0)
	require.False(t, gated)
	require.Equal(t, ActionAllow, effective)
}

func TestLoadFileSkipsMalformedRules(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/rules.json"
	content := `[
		{"id": "r1", "target": "table", "selector": "dbo.Users", "action": "block"},
		{"id": "", "target": "table", "selector": "dbo.Bad", "action": "block"},
		{"id": "r3", "target": "bogus", "selector": "x", "action": "block"},
		{"id": "r4", "target": "table", "selector": "dbo.Orders", "action": "nonsense"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rs, err := LoadFile(path, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rules(), 1)
	require.Equal(t, "r1", rs.Rules()[0].ID)
}
