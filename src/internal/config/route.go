// FILE: callwisp/src/internal/config/route.go
package config

// FilterType represents the filter type
type FilterType string

const (
	FilterTypeInclude FilterType = "include" // Whitelist - only matching entries pass
	FilterTypeExclude FilterType = "exclude" // Blacklist - matching entries are dropped
)

// FilterLogic represents how multiple patterns are combined
type FilterLogic string

const (
	FilterLogicOr  FilterLogic = "or"  // Match any pattern
	FilterLogicAnd FilterLogic = "and" // Match all patterns
)

// FilterConfig represents filter configuration
type FilterConfig struct {
	Type     FilterType  `toml:"type"`
	Logic    FilterLogic `toml:"logic"`
	Patterns []string    `toml:"patterns"`
}

// RouteConfig is one dynamic router rule. An entry matches when its level is in Levels
// (if set) and it passes Filter (if set). The first matching route receives the entry.
type RouteConfig struct {
	Name   string        `toml:"name"`
	Sink   string        `toml:"sink"`
	Levels []string      `toml:"levels"`
	Filter *FilterConfig `toml:"filter"`

	// Marks the fallback sink for unmatched entries; Levels and Filter are ignored
	Default bool `toml:"default"`
}
