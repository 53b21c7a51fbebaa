package registration

import (
	"testing"

	"github.com/tjfontaine/scene-gateway/internal/provider/registry"
)

func TestRegisterBuiltins(t *testing.T) {
	RegisterBuiltins()
	RegisterBuiltins()

	for _, typ := range []string{"openai", "gemini"} {
		if !registry.IsRegistered(typ) {
			t.Errorf("provider type %q not registered", typ)
		}
	}
}
