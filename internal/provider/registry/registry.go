// Package registry maps the provider types named in configuration to the
// factories that build them. Adapters register through a
// RegisterProviderFactory function wired from internal/registration.
package registry

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tjfontaine/scene-gateway/internal/config"
	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// ProviderFactory builds providers of one type.
type ProviderFactory struct {
	// Type is the identifier used in configuration ("openai", "gemini").
	Type    string
	APIType domain.APIType

	Description string

	Create func(cfg config.ProviderConfig) (domain.Provider, error)

	// ValidateConfig runs before Create. Optional.
	ValidateConfig func(cfg config.ProviderConfig) error
}

var (
	mu        sync.RWMutex
	factories = make(map[string]ProviderFactory)
)

// RegisterFactory adds f. Registering an empty type, a nil Create or a type
// twice is a programming error and panics.
func RegisterFactory(f ProviderFactory) {
	if f.Type == "" {
		panic("provider factory type cannot be empty")
	}
	if f.Create == nil {
		panic(fmt.Sprintf("provider factory %q must have a Create function", f.Type))
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[f.Type]; exists {
		panic(fmt.Sprintf("provider factory %q already registered", f.Type))
	}
	factories[f.Type] = f
}

func GetFactory(providerType string) (ProviderFactory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[providerType]
	return f, ok
}

func IsRegistered(providerType string) bool {
	_, ok := GetFactory(providerType)
	return ok
}

// ListProviderTypes returns the registered types in sorted order.
func ListProviderTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Sorted(maps.Keys(factories))
}

// CreateFromFactory validates cfg and builds the provider of cfg.Type.
func CreateFromFactory(cfg config.ProviderConfig) (domain.Provider, error) {
	f, ok := GetFactory(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s (registered types: %v)", cfg.Type, ListProviderTypes())
	}
	if f.ValidateConfig != nil {
		if err := f.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration for provider %s: %w", cfg.Name, err)
		}
	}
	return f.Create(cfg)
}

// ClearFactories removes every registration. Tests use it to install stubs.
func ClearFactories() {
	mu.Lock()
	defer mu.Unlock()
	clear(factories)
}
