// Package tokens estimates token usage for turns whose upstream did not report it.
package tokens

import (
	"strings"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// Counter counts tokens for one family of models.
type Counter interface {
	SupportsModel(model string) bool
	CountText(model, text string) int
	CountMessages(model string, msgs []domain.ChatMessage) int
}

// Registry picks a Counter by model, falling back to an Estimator.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry returns a registry with only the character-based fallback.
func NewRegistry() *Registry {
	return &Registry{fallback: NewEstimator()}
}

// Register adds a counter. Counters are tried in registration order.
func (r *Registry) Register(c Counter) {
	r.counters = append(r.counters, c)
}

// Counter returns the counter for model.
func (r *Registry) Counter(model string) Counter {
	for _, c := range r.counters {
		if c.SupportsModel(model) {
			return c
		}
	}
	return r.fallback
}

// Usage estimates usage for a prompt and the completion text it produced.
func (r *Registry) Usage(model string, prompt []domain.ChatMessage, completion string) domain.Usage {
	c := r.Counter(model)
	in := c.CountMessages(model, prompt)
	out := c.CountText(model, completion)
	return domain.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
}

// Estimator approximates token counts from character length.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// CountText estimates the tokens in text.
func (e *Estimator) CountText(_ string, text string) int {
	return int(float64(len(text)) / e.CharsPerToken)
}

// CountMessages estimates the tokens of a message list, including role overhead.
func (e *Estimator) CountMessages(_ string, msgs []domain.ChatMessage) int {
	chars := 0
	for _, m := range msgs {
		chars += len(m.Role) + len(m.Text()) + 4
		for _, tc := range m.ToolCalls {
			chars += len(tc.FunctionName) + len(tc.ArgumentsJSON)
		}
	}
	return int(float64(chars) / e.CharsPerToken)
}

// SupportsModel returns true; the estimator is the fallback for every model.
func (e *Estimator) SupportsModel(string) bool {
	return true
}

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{prefixes: prefixes, exact: exact}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
