// FILE: callwisp/src/internal/filter/filter.go
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"

	"github.com/lixenwraith/log"
)

// Filter applies regex-based filtering to log entries
type Filter struct {
	config   config.FilterConfig
	patterns []*regexp.Regexp
	mu       sync.RWMutex
	logger   *log.Logger

	// Statistics
	totalProcessed atomic.Uint64
	totalMatched   atomic.Uint64
	totalDropped   atomic.Uint64
}

// NewFilter creates a new filter from configuration
func NewFilter(cfg config.FilterConfig, logger *log.Logger) (*Filter, error) {
	// Set defaults
	if cfg.Type == "" {
		cfg.Type = config.FilterTypeInclude
	}
	if cfg.Logic == "" {
		cfg.Logic = config.FilterLogicOr
	}

	switch cfg.Type {
	case config.FilterTypeInclude, config.FilterTypeExclude:
	default:
		return nil, fmt.Errorf("invalid filter type '%s'", cfg.Type)
	}
	switch cfg.Logic {
	case config.FilterLogicOr, config.FilterLogicAnd:
	default:
		return nil, fmt.Errorf("invalid filter logic '%s'", cfg.Logic)
	}

	f := &Filter{
		config:   cfg,
		patterns: make([]*regexp.Regexp, 0, len(cfg.Patterns)),
		logger:   logger,
	}

	// Compile patterns
	for i, pattern := range cfg.Patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern[%d] '%s': %w", i, pattern, err)
		}
		f.patterns = append(f.patterns, re)
	}

	if logger != nil {
		logger.Debug("msg", "Filter created",
			"component", "filter",
			"type", cfg.Type,
			"logic", cfg.Logic,
			"pattern_count", len(cfg.Patterns))
	}

	return f, nil
}

// Text is the line patterns are matched against:
// "LEVEL module.function ExceptionType: exception message"
func Text(entry *core.LogEntry) string {
	var parts []string
	if entry.Level != "" {
		parts = append(parts, entry.Level)
	}

	name := entry.FunctionName
	if entry.Module != "" && name != "" {
		name = entry.Module + "." + name
	} else if name == "" {
		name = entry.Module
	}
	if name != "" {
		parts = append(parts, name)
	}

	if entry.Exception != "" {
		if entry.ExceptionType != "" {
			parts = append(parts, entry.ExceptionType+": "+entry.Exception)
		} else {
			parts = append(parts, entry.Exception)
		}
	}
	if msg, ok := entry.Extra.Fields()["message"].(string); ok && msg != "" {
		parts = append(parts, msg)
	}
	return strings.Join(parts, " ")
}

// Apply checks if a log entry should be passed through
func (f *Filter) Apply(entry *core.LogEntry) bool {
	f.totalProcessed.Add(1)

	f.mu.RLock()
	patterns := f.patterns
	f.mu.RUnlock()

	// No patterns means pass everything
	if len(patterns) == 0 {
		return true
	}

	matched := f.matches(patterns, Text(entry))
	if matched {
		f.totalMatched.Add(1)
	}

	// Determine if we should pass or drop
	shouldPass := false
	switch f.config.Type {
	case config.FilterTypeInclude:
		shouldPass = matched
	case config.FilterTypeExclude:
		shouldPass = !matched
	}

	if !shouldPass {
		f.totalDropped.Add(1)
	}

	return shouldPass
}

// matches checks if text matches the patterns according to the logic
func (f *Filter) matches(patterns []*regexp.Regexp, text string) bool {
	if f.config.Logic == config.FilterLogicAnd {
		// Must match all patterns
		for _, re := range patterns {
			if !re.MatchString(text) {
				return false
			}
		}
		return true
	}

	// Match any pattern
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// GetStats returns filter statistics
func (f *Filter) GetStats() map[string]any {
	f.mu.RLock()
	count := len(f.patterns)
	f.mu.RUnlock()

	return map[string]any{
		"type":            f.config.Type,
		"logic":           f.config.Logic,
		"pattern_count":   count,
		"total_processed": f.totalProcessed.Load(),
		"total_matched":   f.totalMatched.Load(),
		"total_dropped":   f.totalDropped.Load(),
	}
}

// UpdatePatterns allows dynamic pattern updates
func (f *Filter) UpdatePatterns(patterns []string) error {
	compiled := make([]*regexp.Regexp, 0, len(patterns))

	// Compile all patterns first
	for i, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid regex pattern[%d] '%s': %w", i, pattern, err)
		}
		compiled = append(compiled, re)
	}

	// Update atomically
	f.mu.Lock()
	f.patterns = compiled
	f.config.Patterns = patterns
	f.mu.Unlock()

	if f.logger != nil {
		f.logger.Info("msg", "Filter patterns updated",
			"component", "filter",
			"pattern_count", len(patterns))
	}
	return nil
}
