// Package providers selects among configured agent.Provider bindings by
// name, with a single configured fallback used when the name is empty or
// not registered.
package providers

import (
	"fmt"
	"strings"

	"github.com/omegaflow/agentcore/internal/agent"
)

// Registry looks up a Provider by name with a configured default.
type Registry struct {
	byName  map[string]agent.Provider
	fallback string
}

// NewRegistry builds a Registry; fallback names the provider returned when
// a lookup name is empty or unknown.
func NewRegistry(fallback string) *Registry {
	return &Registry{byName: make(map[string]agent.Provider), fallback: fallback}
}

// Register adds p under its own Name().
func (r *Registry) Register(p agent.Provider) {
	r.byName[strings.ToLower(p.Name())] = p
}

// Get resolves name to a Provider, falling back to the registry's default
// when name is empty or not registered.
func (r *Registry) Get(name string) (agent.Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = strings.ToLower(r.fallback)
	}
	if p, ok := r.byName[key]; ok {
		return p, nil
	}
	if p, ok := r.byName[strings.ToLower(r.fallback)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("providers: no provider registered for %q", name)
}
