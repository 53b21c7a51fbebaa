package provider

import (
	"log/slog"
	"maps"
)

// Well-known alias names every built-in table defines.
const (
	AliasDefault   = "default"
	AliasEmbedding = "embedding"
)

// OpenAIAliases maps short names to OpenAI model identifiers.
var OpenAIAliases = map[string]string{
	AliasDefault:   "gpt-4o-mini",
	AliasEmbedding: "text-embedding-3-small",
	"fast":         "gpt-4o-mini",
	"mini":         "gpt-4o-mini",
	"smart":        "gpt-4o",
	"4o":           "gpt-4o",
}

// GeminiAliases maps short names to Gemini model identifiers.
var GeminiAliases = map[string]string{
	AliasDefault:   "gemini-2.0-flash",
	AliasEmbedding: "text-embedding-004",
	"fast":         "gemini-2.0-flash",
	"flash":        "gemini-2.0-flash",
	"flash-lite":   "gemini-2.0-flash-lite",
	"smart":        "gemini-1.5-pro",
	"pro":          "gemini-1.5-pro",
}

// AliasResolver turns a requested model name into the upstream's canonical identifier.
type AliasResolver struct {
	provider string
	aliases  map[string]string
	known    map[string]bool
	logger   *slog.Logger
}

// NewAliasResolver merges configured over builtin. Either may be nil.
func NewAliasResolver(provider string, builtin, configured map[string]string, logger *slog.Logger) *AliasResolver {
	if logger == nil {
		logger = slog.Default()
	}
	aliases := make(map[string]string, len(builtin)+len(configured))
	maps.Copy(aliases, builtin)
	maps.Copy(aliases, configured)

	known := make(map[string]bool, len(aliases))
	for _, model := range aliases {
		known[model] = true
	}
	return &AliasResolver{provider: provider, aliases: aliases, known: known, logger: logger}
}

// Resolve maps model through the alias table. An empty model resolves to the
// default alias. Names that are neither an alias nor a known target pass
// through unchanged with a warning.
func (r *AliasResolver) Resolve(model string) string {
	if model == "" {
		model = AliasDefault
	}
	if target, ok := r.aliases[model]; ok {
		return target
	}
	if !r.known[model] {
		r.logger.Warn("unknown model alias, passing through",
			slog.String("provider", r.provider),
			slog.String("model", model),
		)
	}
	return model
}
