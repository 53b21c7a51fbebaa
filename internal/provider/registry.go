package provider

import (
	"fmt"
	"sort"

	"github.com/tjfontaine/scene-gateway/internal/config"
	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/provider/registry"
)

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]domain.Provider
}

// NewRegistry creates every configured provider through its registered factory.
// A provider whose credential is missing fails the whole call. Every provider
// is wrapped in a TracedProvider.
func NewRegistry(configs []config.ProviderConfig) (*Registry, error) {
	r := &Registry{providers: make(map[string]domain.Provider, len(configs))}
	for _, cfg := range configs {
		if _, dup := r.providers[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate provider name %q", cfg.Name)
		}
		p, err := registry.CreateFromFactory(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", cfg.Name, err)
		}
		r.providers[cfg.Name] = NewTracedProvider(p)
	}
	return r, nil
}

// Add registers an already-built provider under name.
func (r *Registry) Add(name string, p domain.Provider) {
	if r.providers == nil {
		r.providers = make(map[string]domain.Provider)
	}
	r.providers[name] = p
}

// Get returns the provider named name.
func (r *Registry) Get(name string) (domain.Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names lists the configured providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
