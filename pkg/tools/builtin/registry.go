// Package builtin provides the in-process tool capabilities that tool
// definitions with a builtin handler can bind to.
package builtin

import (
	"fmt"

	"github.com/eamonnk/agentd/pkg/memory"
	"github.com/eamonnk/agentd/pkg/tools"
)

// Registry maps builtin capability names to their tools.
type Registry struct {
	byName map[string]tools.Tool
}

// Opt configures a registry.
type Opt func(*Registry)

// WithMemory enables the memory capabilities backed by driver.
func WithMemory(driver memory.Driver) Opt {
	return func(r *Registry) {
		for _, t := range memoryTools(driver) {
			r.byName[t.Name] = t
		}
	}
}

// NewRegistry builds a registry with the stateless capabilities always
// present plus whatever the options enable.
func NewRegistry(opts ...Opt) *Registry {
	r := &Registry{byName: map[string]tools.Tool{}}
	for _, t := range datetimeTools() {
		r.byName[t.Name] = t
	}
	for _, t := range mathTools() {
		r.byName[t.Name] = t
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup resolves a capability by name.
func (r *Registry) Lookup(name string) (tools.Tool, error) {
	t, ok := r.byName[name]
	if !ok {
		return tools.Tool{}, fmt.Errorf("unknown builtin '%s'", name)
	}
	return t, nil
}

// Names lists the registered capability names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
