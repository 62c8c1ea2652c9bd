// FILE: callwisp/src/internal/filter/route.go
package filter

import (
	"fmt"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"

	"github.com/lixenwraith/log"
)

// RoutePredicate compiles a route's level list and regex filter into one match function.
// A route with neither matches every entry.
func RoutePredicate(route config.RouteConfig, logger *log.Logger) (func(entry *core.LogEntry) bool, error) {
	levels := make(map[string]bool, len(route.Levels))
	for _, l := range route.Levels {
		levels[core.NormalizeLevel(l)] = true
	}

	var f *Filter
	if route.Filter != nil {
		var err error
		if f, err = NewFilter(*route.Filter, logger); err != nil {
			return nil, fmt.Errorf("route '%s': %w", route.Name, err)
		}
	}

	return func(entry *core.LogEntry) bool {
		if len(levels) > 0 && !levels[core.NormalizeLevel(entry.Level)] {
			return false
		}
		return f == nil || f.Apply(entry)
	}, nil
}
