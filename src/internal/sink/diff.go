// FILE: callwisp/src/internal/sink/diff.go
package sink

import (
	"container/list"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"callwisp/src/internal/core"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/crypto/blake2b"
)

// diffRecord is the last observed outcome for one (function, input) key
type diffRecord struct {
	key     string
	version string
	ret     string
}

// DiffTracker flags entries whose return value changed for identical input across versions.
//
// With maxEntries == 0 the history keeps one record per distinct (function, input) pair for
// the process lifetime; use a cap for high-cardinality argument spaces. With a cap, the least
// recently seen pair is evicted first.
type DiffTracker struct {
	delegate   Sink
	maxEntries int

	mu      sync.Mutex
	history map[string]*list.Element
	order   *list.List // front = most recently seen

	diffs     uint64
	evictions uint64
}

// NewDiffTracker wraps delegate. maxEntries <= 0 means unbounded.
func NewDiffTracker(delegate Sink, maxEntries int) *DiffTracker {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &DiffTracker{
		delegate:   delegate,
		maxEntries: maxEntries,
		history:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

func (d *DiffTracker) Write(entry *core.LogEntry) error {
	if entry.Version != "" && entry.ReturnValue != nil {
		d.track(entry)
	}
	return d.delegate.Write(entry)
}

func (d *DiffTracker) track(entry *core.LogEntry) {
	key := diffKey(entry)
	current := core.ReprN(entry.ReturnValue, 0)

	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.history[key]; ok {
		prev := el.Value.(*diffRecord)
		if prev.version != entry.Version && prev.ret != current {
			entry.Extra.VersionDiff = diffMessage(entry, prev, current)
			entry.Extra.PrevVersion = prev.version
			entry.Extra.PrevReturn = core.Truncate(prev.ret, core.DefaultMaxReprLength)
			d.diffs++
		}
		prev.version = entry.Version
		prev.ret = current
		d.order.MoveToFront(el)
		return
	}

	d.history[key] = d.order.PushFront(&diffRecord{key: key, version: entry.Version, ret: current})
	if d.maxEntries > 0 && d.order.Len() > d.maxEntries {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.history, oldest.Value.(*diffRecord).key)
		d.evictions++
	}
}

// diffKey is "<function>:<hash of args and kwargs>"
func diffKey(entry *core.LogEntry) string {
	var sb strings.Builder
	for _, arg := range entry.Args {
		sb.WriteString(core.ReprN(arg, 0))
		sb.WriteByte(0)
	}
	sb.WriteByte(1)

	keys := make([]string, 0, len(entry.Kwargs))
	for k := range entry.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(core.ReprN(entry.Kwargs[k], 0))
		sb.WriteByte(0)
	}

	sum := blake2b.Sum256([]byte(sb.String()))
	return entry.FunctionName + ":" + hex.EncodeToString(sum[:8])
}

// diffMessage renders a one-line summary, followed by a unified diff for multi-line values
func diffMessage(entry *core.LogEntry, prev *diffRecord, current string) string {
	args := make([]string, len(entry.Args))
	for i, a := range entry.Args {
		args[i] = core.Repr(a)
	}
	msg := fmt.Sprintf("DIFF: %s(%s) v%s→%s vs v%s→%s",
		entry.FunctionName, strings.Join(args, ", "),
		prev.version, core.Truncate(prev.ret, 200),
		entry.Version, core.Truncate(current, 200))

	if !strings.Contains(prev.ret, "\n") && !strings.Contains(current, "\n") {
		return msg
	}

	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(prev.ret),
		B:        difflib.SplitLines(current),
		FromFile: "v" + prev.version,
		ToFile:   "v" + entry.Version,
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil || text == "" {
		return msg
	}
	return msg + "\n" + core.Truncate(text, core.DefaultMaxReprLength)
}

// Tracked returns the number of (function, input) pairs in the history
func (d *DiffTracker) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

func (d *DiffTracker) Close() error {
	return d.delegate.Close()
}

func (d *DiffTracker) GetStats() SinkStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return SinkStats{
		Type: "diff",
		Details: map[string]any{
			"tracked":     d.order.Len(),
			"max_entries": d.maxEntries,
			"diffs":       d.diffs,
			"evictions":   d.evictions,
		},
	}
}
