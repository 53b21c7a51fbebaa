// Package provider builds upstream adapters from configuration and holds the
// pieces every adapter shares: model alias resolution, synthetic tool-call ids
// and tracing.
package provider

import (
	"github.com/tjfontaine/scene-gateway/internal/provider/registry"
)

// Aliases so callers holding a *Registry need not import the registry package.
type ProviderFactory = registry.ProviderFactory

var (
	RegisterFactory   = registry.RegisterFactory
	IsRegistered      = registry.IsRegistered
	ListProviderTypes = registry.ListProviderTypes
	ClearFactories    = registry.ClearFactories
)
