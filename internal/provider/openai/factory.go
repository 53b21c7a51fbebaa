package openai

import (
	"github.com/tjfontaine/scene-gateway/internal/config"
	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/provider/registry"
)

// ProviderType is the provider type identifier used in configuration.
const ProviderType = "openai"

// RegisterProviderFactory registers the OpenAI factory once.
func RegisterProviderFactory() {
	if registry.IsRegistered(ProviderType) {
		return
	}
	registry.RegisterFactory(registry.ProviderFactory{
		Type:           ProviderType,
		APIType:        domain.APITypeOpenAI,
		Description:    "OpenAI-compatible chat completions API",
		Create:         CreateFromConfig,
		ValidateConfig: ValidateConfig,
	})
}

// CreateFromConfig creates a new OpenAI provider from configuration.
func CreateFromConfig(cfg config.ProviderConfig) (domain.Provider, error) {
	opts := []ProviderOption{WithAliases(cfg.Aliases)}
	if cfg.Name != "" {
		opts = append(opts, WithName(cfg.Name))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.EmbeddingModel != "" {
		opts = append(opts, WithEmbeddingModel(cfg.EmbeddingModel))
	}
	return New(cfg.APIKey, opts...), nil
}

// ValidateConfig fails when no API key is configured.
func ValidateConfig(cfg config.ProviderConfig) error {
	if cfg.APIKey == "" {
		return domain.MissingCredential(cfg.Name, "providers[].api_key", config.CredentialEnvVar(cfg.Type))
	}
	return nil
}
