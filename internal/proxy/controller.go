package proxy

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sqlumai/tdsguard/internal/config"
	"github.com/sqlumai/tdsguard/internal/decisionlog"
	"github.com/sqlumai/tdsguard/internal/logx"
	"github.com/sqlumai/tdsguard/internal/metrics"
	"github.com/sqlumai/tdsguard/internal/normalize"
	"github.com/sqlumai/tdsguard/internal/policy"
	"github.com/sqlumai/tdsguard/internal/rpccodec"
	"github.com/sqlumai/tdsguard/internal/sqlshallow"
	"github.com/sqlumai/tdsguard/internal/tdsframe"
)

// controller is the rewrite controller for one connection's
// client-to-server direction: it reassembles SQL Batch and RPC
// Request messages packet-by-packet, evaluates policy, and either
// forwards, drops, or rewrites each message before re-emitting it as
// a single packet.
type controller struct {
	deps Deps
	spid *uint16
	// rules is the snapshot taken when the connection started; a later
	// reload does not change it.
	rules *policy.RuleSet

	pendingType tdsframe.PacketType
	pending     []byte
	pendingSPID uint16
	haveType    bool
}

func newController(deps Deps, spid *uint16) *controller {
	c := &controller{deps: deps, spid: spid}
	if deps.Rules != nil {
		c.rules = deps.Rules.Current()
	}
	return c
}

// process consumes as many complete packets from data as it can,
// returning the bytes to forward upstream and how many input bytes
// were consumed. Anything it cannot parse is forwarded unchanged
// (fail open): a header declaring a length below 8 bytes makes it
// forward the whole buffer as-is.
func (c *controller) process(data []byte) (out []byte, consumed int) {
	pkts, n, err := tdsframe.IterPackets(data)
	if err != nil {
		// Structurally invalid: forward as-is rather than wedge the connection.
		c.incErr()
		return data, len(data)
	}
	for _, pkt := range pkts {
		*c.spid = pkt.Header.SPID
		switch pkt.Header.Type {
		case tdsframe.TypeSQLBatch, tdsframe.TypeRPCRequest:
			c.accumulate(pkt)
			if pkt.Header.IsEOM() {
				out = append(out, c.flush()...)
			}
		default:
			out = append(out, tdsframe.EncodeHeader(pkt.Header.Type, pkt.Header.Status,
				tdsframe.HeaderSize+len(pkt.Payload), pkt.Header.SPID, pkt.Header.PktID, pkt.Header.Window)...)
			out = append(out, pkt.Payload...)
		}
	}
	return out, n
}

func (c *controller) accumulate(pkt tdsframe.Packet) {
	if !c.haveType {
		c.pendingType = pkt.Header.Type
		c.pendingSPID = pkt.Header.SPID
		c.haveType = true
	}
	c.pending = append(c.pending, pkt.Payload...)
}

// flush processes the fully-reassembled message and re-emits it as a
// single EOM-set packet, clearing accumulation state.
func (c *controller) flush() []byte {
	typ, payload, spid := c.pendingType, c.pending, c.pendingSPID
	c.pending = nil
	c.haveType = false

	start := time.Now()
	cfg := c.deps.Cfg

	if len(payload) > cfg.MaxRewriteBytes {
		c.inc(metrics.KeyRewriteSkippedSize, 1)
		return tdsframe.EncodeMessage(typ, payload, spid)
	}

	var result []byte
	var dropped bool
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.incErr()
				result = payload
			}
		}()
		switch typ {
		case tdsframe.TypeSQLBatch:
			c.inc(metrics.KeyBatchesSeen, 1)
			result, dropped = c.handleBatch(payload)
		case tdsframe.TypeRPCRequest:
			c.inc(metrics.KeyRPCRequestsSeen, 1)
			result, dropped = c.handleRPC(payload)
		default:
			result = payload
		}
	}()

	if time.Since(start) > time.Duration(cfg.TimeBudgetMS)*time.Millisecond {
		c.inc(metrics.KeyRewriteSkippedBudget, 1)
	}

	if dropped {
		return nil
	}
	return tdsframe.EncodeMessage(typ, result, spid)
}

// decodeText decodes a client payload as UTF-16LE, falling back to a
// byte-as-rune (latin-1) decode if the UTF-16LE interpretation
// produces an implausible amount of the replacement character —
// a best-effort heuristic, never an authoritative codepage detector.
func decodeText(payload []byte) string {
	s := rpccodec.DecodeUTF16LE(payload)
	if strings.Count(s, string(utf8.RuneError)) > len(s)/4 {
		b := make([]rune, len(payload))
		for i, by := range payload {
			b[i] = rune(by)
		}
		return string(b)
	}
	return s
}

// effectiveAction decides what to actually apply to the wire for d,
// which the caller must already have passed to recordAndCount (so the
// rule's own hit counter, read here via hitCounter, includes the hit
// from d itself). Threshold gating is only consulted in enforce mode
// per §4.5; in log mode a matched rule's nominal action is reported
// but never alters the wire, so gating would be moot.
func (c *controller) effectiveAction(d policy.Decision, enforcing bool) policy.Action {
	if !d.Matched {
		c.inc(metrics.KeyAllowed, 1)
		return policy.ActionAllow
	}
	if enforcing {
		hits := c.hitCounter().RuleHits(d.Rule.ID)
		if effective, gated := policy.Gate(d, hits); gated {
			c.inc(metrics.KeyGatedByThreshold, 1)
			return effective
		}
	}
	if d.Action == policy.ActionAllow {
		c.inc(metrics.KeyAllowed, 1)
	}
	return d.Action
}

func (c *controller) handleBatch(payload []byte) (out []byte, dropped bool) {
	sql := decodeText(payload)
	env := c.deps.Cfg.Environment
	enforcing := c.deps.Cfg.EnforcementMode == config.ModeEnforce

	wholeDecision := policy.Evaluate(c.rules, policy.Event{Text: sql, Env: env})
	if wholeDecision.Matched {
		c.recordAndCount(wholeDecision, "batch", "", "", sql)
	}
	if c.effectiveAction(wholeDecision, enforcing) == policy.ActionBlock {
		c.inc(metrics.KeyBlocks, 1)
		if enforcing {
			return nil, true
		}
		return rpccodec.EncodeUTF16LE(sql), false
	}

	st, ok := sqlshallow.Parse(sql)
	if !ok || st.Kind == sqlshallow.KindSelect || st.Kind == sqlshallow.KindBulk || st.Kind == sqlshallow.KindMerge || st.Kind == sqlshallow.KindDelete {
		return rpccodec.EncodeUTF16LE(sql), false
	}

	changed := false
	newRows := make([][]string, len(st.Rows))
	for ri, row := range st.Rows {
		newRow := make([]string, len(row))
		copy(newRow, row)
		for ci, col := range st.Columns {
			if ci >= len(row) {
				continue
			}
			ev := policy.Event{Table: st.Table, Column: col, Env: env}
			d := policy.Evaluate(c.rules, ev)
			if !d.Matched {
				continue
			}
			c.recordAndCount(d, string(st.Kind), st.Table, col, row[ci])
			switch c.effectiveAction(d, enforcing) {
			case policy.ActionBlock:
				c.inc(metrics.KeyBlocks, 1)
				if enforcing {
					return nil, true
				}
			case policy.ActionAutocorrect:
				c.inc(metrics.KeyAutocorrectSuggested, 1)
				if sug, ok := normalize.Suggest(row[ci]); ok && sug.Normalized != row[ci] {
					newRow[ci] = sug.Normalized
					changed = true
				}
			}
		}
		newRows[ri] = newRow
	}
	if !changed {
		return rpccodec.EncodeUTF16LE(sql), false
	}

	var rewritten string
	var rok bool
	switch st.Kind {
	case sqlshallow.KindInsert:
		if len(newRows) == 1 {
			rewritten, rok = sqlshallow.ReconstructInsert(sql, newRows[0])
		} else {
			rewritten, rok = sqlshallow.ReconstructMultiRowInsert(sql, newRows)
		}
	case sqlshallow.KindUpdate:
		rewritten, rok = sqlshallow.ReconstructUpdate(sql, st.Columns, newRows[0])
	}
	if !rok {
		return rpccodec.EncodeUTF16LE(sql), false
	}
	return rpccodec.EncodeUTF16LE(rewritten), false
}

func (c *controller) handleRPC(payload []byte) (out []byte, dropped bool) {
	proc, params := rpccodec.Scan(payload)
	env := c.deps.Cfg.Environment
	enforcing := c.deps.Cfg.EnforcementMode == config.ModeEnforce

	c.inc(metrics.KeyRPCSeen, 1)

	var rewrites []rpccodec.Rewrite
	newValues := make(map[string]string)
	for _, param := range params {
		d := policy.Evaluate(c.rules, policy.Event{Column: param.Name, Env: env})
		if !d.Matched {
			continue
		}
		c.recordAndCount(d, "rpc", proc, param.Name, param.Value)
		switch c.effectiveAction(d, enforcing) {
		case policy.ActionBlock:
			c.inc(metrics.KeyRPCBlocked, 1)
			if enforcing {
				return nil, true
			}
		case policy.ActionRPCAutocorrectInplace, policy.ActionAutocorrect:
			if !c.deps.Cfg.RPCAutocorrectInplace {
				continue
			}
			c.inc(metrics.KeyRPCAutocorrectInplace, 1)
			if sug, ok := normalize.Suggest(param.Value); ok && sug.Normalized != param.Value {
				rewrites = append(rewrites, rpccodec.Rewrite{Name: param.Name, OldValue: param.Value, NewValue: sug.Normalized})
				newValues[param.Name] = sug.Normalized
			}
		}
	}
	if len(rewrites) == 0 {
		return payload, false
	}

	if c.deps.Cfg.RPCRepackBuilder && c.deps.Types != nil {
		if repacked, ok := c.repack(proc, params, newValues); ok {
			return repacked, false
		}
	}

	newPayload, changed := rpccodec.ApplyInPlace(payload, rewrites, c.deps.Cfg.RPCTruncateOnAutocorrect)
	if !changed {
		return payload, false
	}
	return newPayload, false
}

// repack rebuilds the whole RPC payload from scratch using the typed
// builder, for procedures whose parameter types are all known to
// deps.Types. It returns ok=false if any parameter's type cannot be
// resolved, so the caller falls back to the length-safe in-place path.
func (c *controller) repack(proc string, params []rpccodec.Param, newValues map[string]string) ([]byte, bool) {
	built := make([]rpccodec.BuildParam, len(params))
	for i, p := range params {
		t, ok := c.deps.Types.ResolveType(proc, p.Name)
		if !ok {
			return nil, false
		}
		v := p.Value
		if nv, ok := newValues[p.Name]; ok {
			v = nv
		}
		built[i] = rpccodec.BuildParam{Name: p.Name, Value: v, Type: t}
	}
	return rpccodec.Build(proc, built), true
}

func (c *controller) recordAndCount(d policy.Decision, kind, table, column, detail string) {
	if c.deps.Counters != nil {
		c.deps.Counters.IncRuleAction(d.Rule.ID, string(d.Action), 1)
	}
	if c.deps.Sink != nil {
		c.deps.Sink.Write(decisionlog.Record{
			SPID:   *c.spid,
			RuleID: d.Rule.ID,
			Action: string(d.Action),
			Target: string(d.Rule.Target),
			Table:  table,
			Column: column,
			Kind:   kind,
			Detail: trimDetail(detail),
		})
	}
}

func trimDetail(s string) string {
	const max = 256
	if len(s) > max {
		return s[:max]
	}
	return s
}

func (c *controller) inc(key string, by int64) {
	if c.deps.Counters != nil {
		c.deps.Counters.Inc(key, by)
	}
}

func (c *controller) incErr() {
	c.inc(metrics.KeyParseErrors, 1)
	if c.deps.Log != nil {
		c.deps.Log.Warn("fail-open: forwarding unparsed bytes", logx.KV("spid", *c.spid))
	}
}

// ruleHitCounter adapts metrics.Counters to policy.HitCounter.
type ruleHitCounter struct {
	counters *metrics.Counters
}

func (r ruleHitCounter) RuleHits(ruleID string) int {
	if r.counters == nil {
		return 0
	}
	total := 0
	for _, action := range []string{"block", "autocorrect", "rpc_autocorrect_inplace"} {
		total += int(r.counters.Get("rule:" + ruleID + ":" + action))
	}
	return total
}

func (c *controller) hitCounter() policy.HitCounter {
	return ruleHitCounter{counters: c.deps.Counters}
}
