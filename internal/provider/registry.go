package provider

import (
	"fmt"
	"sync"

	"github.com/fairlease/modelgate/internal/domain"
)

// Registry holds the configured provider adapters and resolves which one
// serves a given model. Registration happens at composition time; lookups
// are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.Provider
	byModel   map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.Provider),
		byModel:   make(map[string]string),
	}
}

// Register adds a provider and indexes its supported models. A model
// already claimed by an earlier provider stays with that provider.
func (r *Registry) Register(p domain.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.Name()] = p
	for _, model := range p.SupportedModels() {
		if _, taken := r.byModel[model]; !taken {
			r.byModel[model] = p.Name()
		}
	}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

// ForModel resolves the provider that serves model.
func (r *Registry) ForModel(model string) (domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byModel[model]
	if !ok {
		return nil, fmt.Errorf("no provider configured for model %q", model)
	}
	return r.providers[name], nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
