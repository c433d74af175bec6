package policy

// Event is one candidate to evaluate against the catalog: a table
// reference, a column reference, or a free-text pattern subject (e.g.
// a whole SQL statement or an RPC parameter value). Exactly the
// fields relevant to Target are populated by the caller.
type Event struct {
	Table  string
	Column string
	Text   string
	Env    string
}

// Decision is the outcome of evaluating an Event against a RuleSet.
// Action is always the rule's nominal, configured action; Evaluate
// itself never applies threshold gating, so Action is exactly what a
// caller should record and count. Threshold gating (deciding whether
// to actually enforce Action on the wire) is a separate step — see
// Gate — performed after the caller has recorded this decision, so
// the rule's own hit counter reflects every matching event, including
// the one currently being evaluated.
type Decision struct {
	Matched bool
	Rule    Rule
	Action  Action
}

// HitCounter reports how many times a rule has "hit" (block,
// autocorrect, or rpc_autocorrect_inplace actions count), consulted
// for rules carrying a min_hits_to_enforce threshold.
type HitCounter interface {
	RuleHits(ruleID string) int
}

// Evaluate walks rs in order and returns the first enabled Rule whose
// Target matches the Event and whose environment gate passes.
func Evaluate(rs *RuleSet, ev Event) Decision {
	for _, r := range rs.Rules() {
		if !r.isEnabled() {
			continue
		}
		if !r.appliesToEnv(ev.Env) {
			continue
		}
		var matched bool
		switch r.Target {
		case TargetTable:
			matched = ev.Table != "" && r.matchesTable(ev.Table)
		case TargetColumn:
			matched = ev.Column != "" && r.matchesColumn(ev.Column)
		case TargetPattern:
			matched = ev.Text != "" && r.matchesPattern(ev.Text)
		}
		if !matched {
			continue
		}
		return Decision{Matched: true, Rule: r, Action: r.Action}
	}
	return Decision{Matched: false, Action: ActionAllow}
}

// Gate applies d.Rule's min_hits_to_enforce threshold, given hits — the
// rule's current cumulative hit count, which the caller must have
// already incremented for this decision (via its own Decision.Action)
// before calling Gate, so the hit triggering the threshold is itself
// counted towards it. It returns the action to actually apply on the
// wire and whether that differs from d.Action because the threshold
// has not yet been reached.
func Gate(d Decision, hits int) (effective Action, gated bool) {
	if !d.Matched || d.Rule.MinHitsToEnforce <= 0 {
		return d.Action, false
	}
	if hits < d.Rule.MinHitsToEnforce {
		return ActionAllow, true
	}
	return d.Action, false
}
