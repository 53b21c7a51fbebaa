package provider

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/tjfontaine/scene-gateway/internal/config"
	"github.com/tjfontaine/scene-gateway/internal/domain"
)

type stubProvider struct {
	name   string
	events []domain.StreamEvent
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.Envelope, error) {
	return &domain.Envelope{Model: req.Model}, nil
}

func (s *stubProvider) Stream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	ch := make(chan domain.StreamEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (s *stubProvider) Embed(ctx context.Context, req *domain.EmbeddingRequest) (*domain.EmbeddingResponse, error) {
	return &domain.EmbeddingResponse{Model: req.Model, Vectors: make([][]float32, len(req.Input))}, nil
}

func TestMain(m *testing.M) {
	ClearFactories()
	// Stub factories keep these tests independent of the real adapters.
	RegisterFactory(ProviderFactory{
		Type:        "openai",
		APIType:     domain.APITypeOpenAI,
		Description: "stub openai",
		Create: func(cfg config.ProviderConfig) (domain.Provider, error) {
			return &stubProvider{name: cfg.Name}, nil
		},
		ValidateConfig: func(cfg config.ProviderConfig) error {
			if cfg.APIKey == "" {
				return domain.MissingCredential(cfg.Name, "providers[].api_key", "OPENAI_API_KEY")
			}
			return nil
		},
	})
	RegisterFactory(ProviderFactory{
		Type:        "gemini",
		APIType:     domain.APITypeGemini,
		Description: "stub gemini",
		Create: func(cfg config.ProviderConfig) (domain.Provider, error) {
			if cfg.BaseURL == "broken" {
				return nil, errors.New("boom")
			}
			return &stubProvider{name: cfg.Name}, nil
		},
	})
	os.Exit(m.Run())
}
