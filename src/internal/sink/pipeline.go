// FILE: callwisp/src/internal/sink/pipeline.go
package sink

import (
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"callwisp/src/internal/core"

	"github.com/lixenwraith/log"
)

const (
	minPipelineWidth     = 40
	defaultPipelineWidth = 72
	recentTickWindow     = 10
)

// PipelineOptions configures PipelineSink
type PipelineOptions struct {
	Output        io.Writer // default os.Stderr
	Width         int
	BufferTimeout time.Duration
	Color         bool
	TickStart     int
}

// DefaultPipelineOptions returns the renderer defaults
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Output:        os.Stderr,
		Width:         defaultPipelineWidth,
		BufferTimeout: 10 * time.Second,
		Color:         true,
	}
}

// pipelineRun holds the buffered steps of one run
type pipelineRun struct {
	entries   []*core.LogEntry
	firstSeen time.Time
}

// PipelineSink groups entries by pipeline run id and renders each completed run as one
// box. Entries without a run id go straight to the delegate.
type PipelineSink struct {
	delegate Sink
	opts     PipelineOptions
	logger   *log.Logger
	render   *renderer
	now      func() time.Time

	mu          sync.Mutex
	runs        map[string]*pipelineRun
	order       []string // run ids in first-seen order
	tick        int
	sessionCost float64
	recentCosts []float64
	closed      bool
}

// NewPipelineSink creates a pipeline renderer. delegate may be nil.
func NewPipelineSink(delegate Sink, opts PipelineOptions, logger *log.Logger) *PipelineSink {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Width == 0 {
		opts.Width = defaultPipelineWidth
	}
	opts.Width = max(minPipelineWidth, opts.Width)
	if opts.BufferTimeout <= 0 {
		opts.BufferTimeout = DefaultPipelineOptions().BufferTimeout
	}

	return &PipelineSink{
		delegate: delegate,
		opts:     opts,
		logger:   logger,
		render:   newRenderer(opts.Output, opts.Width, opts.Color),
		now:      time.Now,
		runs:     make(map[string]*pipelineRun),
		tick:     opts.TickStart,
	}
}

func (p *PipelineSink) Write(entry *core.LogEntry) error {
	runID := entry.Extra.PipelineRunID
	if runID == "" {
		if p.delegate != nil {
			return p.delegate.Write(entry)
		}
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	run, ok := p.runs[runID]
	if !ok {
		run = &pipelineRun{firstSeen: p.now()}
		p.runs[runID] = run
		p.order = append(p.order, runID)
	}
	run.entries = append(run.entries, entry)

	if entry.Extra.PipelineComplete {
		p.flushRun(runID)
	} else {
		p.flushStale()
	}
	return nil
}

// flushStale renders runs older than the buffer timeout
func (p *PipelineSink) flushStale() {
	now := p.now()
	var stale []string
	for _, id := range p.order {
		if now.Sub(p.runs[id].firstSeen) > p.opts.BufferTimeout {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		p.flushRun(id)
	}
}

// flushRun renders and removes one run; caller holds mu
func (p *PipelineSink) flushRun(runID string) {
	run, ok := p.runs[runID]
	if !ok {
		return
	}
	delete(p.runs, runID)
	p.order = slices.DeleteFunc(p.order, func(id string) bool { return id == runID })

	p.tick++
	cost := tickCost(run.entries)
	p.sessionCost += cost
	p.recentCosts = append(p.recentCosts, cost)
	if len(p.recentCosts) > recentTickWindow {
		p.recentCosts = p.recentCosts[len(p.recentCosts)-recentTickWindow:]
	}

	block := p.render.block(blockData{
		tick:        p.tick,
		runID:       runID,
		entries:     run.entries,
		sessionCost: p.sessionCost,
		recentCosts: p.recentCosts,
	})

	if _, err := io.WriteString(p.opts.Output, block); err != nil {
		if p.logger != nil {
			p.logger.Warn("msg", "Failed to write pipeline block",
				"component", "pipeline_sink",
				"run_id", runID,
				"error", err)
		}
	}
}

// tickCost prefers the completion entry's total cost, else sums step costs
func tickCost(entries []*core.LogEntry) float64 {
	for _, e := range entries {
		if e.Extra.PipelineComplete {
			if e.Extra.TotalCost != nil && *e.Extra.TotalCost != 0 {
				return *e.Extra.TotalCost
			}
			break
		}
	}
	var sum float64
	for _, e := range entries {
		if e.Extra.CostUSD != nil {
			sum += *e.Extra.CostUSD
		}
	}
	return sum
}

// TickCount returns the number of rendered runs
func (p *PipelineSink) TickCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tick
}

// PendingRuns returns the number of buffered runs
func (p *PipelineSink) PendingRuns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.runs)
}

// SessionCost returns the total cost over all rendered runs
func (p *PipelineSink) SessionCost() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionCost
}

// Close renders every remaining run in first-seen order, then closes the delegate
func (p *PipelineSink) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, id := range slices.Clone(p.order) {
		p.flushRun(id)
	}
	p.mu.Unlock()

	if p.delegate != nil {
		return safeClose(p.delegate)
	}
	return nil
}

func (p *PipelineSink) GetStats() SinkStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return SinkStats{
		Type: "pipeline",
		Details: map[string]any{
			"tick_count":   p.tick,
			"pending_runs": len(p.runs),
			"session_cost": p.sessionCost,
			"width":        p.opts.Width,
		},
	}
}
