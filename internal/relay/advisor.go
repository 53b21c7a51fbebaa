package relay

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sort"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// Advice is the side-channel data sent in the metadata event.
type Advice struct {
	Suggestions []string
	Scores      map[string]float64
}

// Advisor computes metadata for a request before the model is called.
type Advisor interface {
	Advise(ctx context.Context, req ChatRequest) (Advice, error)
}

// SuggestionAdvisor offers a fixed list of follow-up questions. With an
// embedder it orders them by cosine similarity to the user's message and
// reports the similarities as scores.
type SuggestionAdvisor struct {
	suggestions []string
	embedder    domain.Provider
	model       string
	logger      *slog.Logger
}

// NewSuggestionAdvisor returns an advisor over suggestions. embedder may be nil.
func NewSuggestionAdvisor(suggestions []string, embedder domain.Provider, model string, logger *slog.Logger) *SuggestionAdvisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SuggestionAdvisor{
		suggestions: slices.Clone(suggestions),
		embedder:    embedder,
		model:       model,
		logger:      logger,
	}
}

// Advise never fails; an embedding error falls back to the configured order.
func (a *SuggestionAdvisor) Advise(ctx context.Context, req ChatRequest) (Advice, error) {
	advice := Advice{Suggestions: slices.Clone(a.suggestions)}
	if a.embedder == nil || len(a.suggestions) == 0 || req.Message == "" {
		return advice, nil
	}

	input := append([]string{req.Message}, a.suggestions...)
	resp, err := a.embedder.Embed(ctx, &domain.EmbeddingRequest{Model: a.model, Input: input})
	if err != nil {
		a.logger.Warn("suggestion ranking failed", "error", err)
		return advice, nil
	}
	if len(resp.Vectors) != len(input) {
		a.logger.Warn("suggestion ranking failed", "error", "vector count mismatch",
			"want", len(input), "got", len(resp.Vectors))
		return advice, nil
	}

	scores := make(map[string]float64, len(a.suggestions))
	for i, s := range a.suggestions {
		scores[s] = cosine(resp.Vectors[0], resp.Vectors[i+1])
	}
	sort.SliceStable(advice.Suggestions, func(i, j int) bool {
		return scores[advice.Suggestions[i]] > scores[advice.Suggestions[j]]
	})
	advice.Scores = scores
	return advice, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
