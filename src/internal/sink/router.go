// FILE: callwisp/src/internal/sink/router.go
package sink

import (
	"sync"
	"sync/atomic"

	"callwisp/src/internal/core"

	"github.com/lixenwraith/log"
)

// Predicate decides whether a routing rule accepts an entry
type Predicate func(entry *core.LogEntry) bool

// Rule pairs a predicate with its target sink
type Rule struct {
	Name      string
	Predicate Predicate
	Sink      Sink
}

// DynamicRouter sends each entry to the sink of the first matching rule, or to the
// default sink when nothing matches. Entries are never broadcast.
type DynamicRouter struct {
	mu          sync.RWMutex
	rules       []Rule
	defaultSink Sink
	logger      *log.Logger

	routed    atomic.Uint64
	defaulted atomic.Uint64
	dropped   atomic.Uint64
	failedPre atomic.Uint64

	closeOnce sync.Once
	closeErr  error
	counters
}

// NewDynamicRouter creates a router with an optional default sink (nil drops unmatched entries)
func NewDynamicRouter(defaultSink Sink, logger *log.Logger) *DynamicRouter {
	r := &DynamicRouter{
		defaultSink: defaultSink,
		logger:      logger,
	}
	r.startCounters()
	return r
}

// AddRule appends a rule; rules are evaluated in registration order
func (r *DynamicRouter) AddRule(name string, predicate Predicate, target Sink) *DynamicRouter {
	r.mu.Lock()
	r.rules = append(r.rules, Rule{Name: name, Predicate: predicate, Sink: target})
	r.mu.Unlock()
	return r
}

// SetDefault replaces the fallback sink
func (r *DynamicRouter) SetDefault(target Sink) {
	r.mu.Lock()
	r.defaultSink = target
	r.mu.Unlock()
}

// Rules returns a copy of the configured rules
func (r *DynamicRouter) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

func (r *DynamicRouter) Write(entry *core.LogEntry) error {
	target := r.route(entry)
	if target == nil {
		r.dropped.Add(1)
		return nil
	}
	r.processed()
	return target.Write(entry)
}

// route selects the destination for entry, or nil
func (r *DynamicRouter) route(entry *core.LogEntry) Sink {
	r.mu.RLock()
	rules := r.rules
	def := r.defaultSink
	r.mu.RUnlock()

	for _, rule := range rules {
		if r.matches(rule, entry) {
			r.routed.Add(1)
			return rule.Sink
		}
	}
	if def != nil {
		r.defaulted.Add(1)
	}
	return def
}

// matches evaluates a predicate; a panicking predicate does not match
func (r *DynamicRouter) matches(rule Rule, entry *core.LogEntry) (ok bool) {
	if rule.Predicate == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.failedPre.Add(1)
			if r.logger != nil {
				r.logger.Warn("msg", "Routing predicate failed, treating as no match",
					"component", "dynamic_router",
					"rule", rule.Name,
					"panic", rec)
			}
			ok = false
		}
	}()
	return rule.Predicate(entry)
}

// Close closes every distinct rule sink and the default sink once
func (r *DynamicRouter) Close() error {
	r.closeOnce.Do(func() {
		r.mu.RLock()
		sinks := make([]Sink, 0, len(r.rules)+1)
		for _, rule := range r.rules {
			sinks = append(sinks, rule.Sink)
		}
		sinks = append(sinks, r.defaultSink)
		r.mu.RUnlock()

		r.closeErr = closeAll(sinks...)
	})
	return r.closeErr
}

func (r *DynamicRouter) GetStats() SinkStats {
	r.mu.RLock()
	ruleCount := len(r.rules)
	r.mu.RUnlock()

	return r.stats("router", map[string]any{
		"rules":              ruleCount,
		"routed":             r.routed.Load(),
		"defaulted":          r.defaulted.Load(),
		"dropped":            r.dropped.Load(),
		"predicate_failures": r.failedPre.Load(),
	})
}

// LevelIn matches entries whose level is one of levels, case-insensitively
func LevelIn(levels ...string) Predicate {
	set := make(map[string]bool, len(levels))
	for _, l := range levels {
		set[core.NormalizeLevel(l)] = true
	}
	return func(entry *core.LogEntry) bool {
		return set[core.NormalizeLevel(entry.Level)]
	}
}

// LevelAtLeast matches entries at or above level
func LevelAtLeast(level string) Predicate {
	threshold := core.LevelRank(level)
	return func(entry *core.LogEntry) bool {
		return core.LevelRank(entry.Level) >= threshold
	}
}

// FunctionIs matches entries for one of the named functions
func FunctionIs(names ...string) Predicate {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(entry *core.LogEntry) bool {
		return set[entry.FunctionName]
	}
}

// Failed matches entries that carry an exception
func Failed() Predicate {
	return func(entry *core.LogEntry) bool {
		return entry.Failed()
	}
}

// All matches when every predicate matches
func All(predicates ...Predicate) Predicate {
	return func(entry *core.LogEntry) bool {
		for _, p := range predicates {
			if !p(entry) {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one predicate matches
func Any(predicates ...Predicate) Predicate {
	return func(entry *core.LogEntry) bool {
		for _, p := range predicates {
			if p(entry) {
				return true
			}
		}
		return false
	}
}
