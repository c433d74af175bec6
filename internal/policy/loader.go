package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/sqlumai/tdsguard/internal/logx"
)

var validTargets = map[Target]bool{TargetTable: true, TargetColumn: true, TargetPattern: true}
var validActions = map[Action]bool{
	ActionAllow: true, ActionBlock: true, ActionAutocorrect: true, ActionRPCAutocorrectInplace: true,
}

// LoadFile reads a JSON array of Rule entries from path. Entries
// missing an id, selector, target, or action, or carrying an unrecognized
// target/action, are skipped rather than failing the whole load —
// a single malformed rule must never take the proxy down.
func LoadFile(path string, log *logx.Logger) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read rules file: %w", err)
	}
	var entries []Rule
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("policy: parse rules file: %w", err)
	}
	good := make([]Rule, 0, len(entries))
	for i, r := range entries {
		if r.ID == "" || r.Selector == "" || !validTargets[r.Target] || !validActions[r.Action] {
			if log != nil {
				log.Warn("skipping malformed rule", logx.KV("index", i), logx.KV("id", r.ID))
			}
			continue
		}
		good = append(good, r)
	}
	return NewRuleSet(good), nil
}

// Watcher holds the live RuleSet snapshot and optionally reloads it on
// rules-file changes. Reads via Current are lock-free; reloads only
// affect connections that read the snapshot after the swap, never the
// ones mid-flight.
type Watcher struct {
	current atomic.Pointer[RuleSet]
	path    string
	log     *logx.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher loads path once and, if watch is true, starts an
// fsnotify watch that reloads the snapshot on write/create events.
// Reload failures are logged and the previous snapshot is kept.
func NewWatcher(path string, watch bool, log *logx.Logger) (*Watcher, error) {
	rs, err := LoadFile(path, log)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, log: log}
	w.current.Store(rs)

	if !watch {
		return w, nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("policy: start rules watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("policy: watch rules file: %w", err)
	}
	w.watcher = fw
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			rs, err := LoadFile(w.path, w.log)
			if err != nil {
				if w.log != nil {
					w.log.Error("rules reload failed, keeping previous snapshot", logx.KVErr(err))
				}
				continue
			}
			w.current.Store(rs)
			if w.log != nil {
				w.log.Info("rules reloaded", logx.KV("count", len(rs.Rules())))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Error("rules watcher error", logx.KVErr(err))
			}
		}
	}
}

// Current returns the live RuleSet snapshot.
func (w *Watcher) Current() *RuleSet {
	return w.current.Load()
}

// Close stops the underlying fsnotify watch, if any.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
