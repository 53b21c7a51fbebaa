// Package registration wires the built-in upstream adapters into the provider
// registry. Binaries and tests call it explicitly instead of relying on init().
package registration

import (
	"github.com/tjfontaine/scene-gateway/internal/provider/gemini"
	"github.com/tjfontaine/scene-gateway/internal/provider/openai"
)

// RegisterBuiltins registers every built-in provider type. Safe to call more than once.
func RegisterBuiltins() {
	openai.RegisterProviderFactory()
	gemini.RegisterProviderFactory()
}
