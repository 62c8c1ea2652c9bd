// FILE: callwisp/src/internal/instrument/registry.go
package instrument

import (
	"sort"
	"sync"
	"time"
)

// Registration describes one wrapped function
type Registration struct {
	Name         string
	Module       string
	Level        string
	Mode         Mode
	RegisteredAt time.Time
}

// Registry records wrapped functions by name
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Registration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Registration)}
}

// add keeps the first registration of a qualified name
func (r *Registry) add(name string, opts Options) {
	key := qualified(opts.Module, name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[key]; exists {
		return
	}
	r.funcs[key] = Registration{
		Name:         name,
		Module:       opts.Module,
		Level:        opts.Level,
		Mode:         opts.Mode,
		RegisteredAt: time.Now(),
	}
}

// Lookup returns the registration for "module.name", or "name" without a module
func (r *Registry) Lookup(qualifiedName string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.funcs[qualifiedName]
	return reg, ok
}

// Names returns the qualified names of all registered functions, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered functions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}

func qualified(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}
