// Package openai adapts OpenAI-compatible chat completion APIs to the
// normalized completion and stream model.
package openai

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	openaiapi "github.com/tjfontaine/scene-gateway/internal/api/openai"
	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/provider"
)

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// WithLogger sets the logger for alias warnings and skipped frames.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithAliases merges configured model aliases over the built-in table.
func WithAliases(aliases map[string]string) ProviderOption {
	return func(p *Provider) {
		p.aliases = aliases
	}
}

// WithName overrides the name reported by Name.
func WithName(name string) ProviderOption {
	return func(p *Provider) {
		p.name = name
	}
}

// WithEmbeddingModel sets the model used when an embedding request names none.
func WithEmbeddingModel(model string) ProviderOption {
	return func(p *Provider) {
		p.embeddingModel = model
	}
}

// Provider implements domain.Provider against the chat completions API.
type Provider struct {
	client         *openaiapi.Client
	name           string
	baseURL        string
	httpClient     *http.Client
	logger         *slog.Logger
	aliases        map[string]string
	embeddingModel string
	models         *provider.AliasResolver
}

// New creates a new OpenAI provider.
func New(apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{
		name:   ProviderType,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	clientOpts := []openaiapi.ClientOption{openaiapi.WithLogger(p.logger)}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, openaiapi.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, openaiapi.WithHTTPClient(p.httpClient))
	}

	p.client = openaiapi.NewClient(apiKey, clientOpts...)
	p.models = provider.NewAliasResolver(p.name, provider.OpenAIAliases, p.aliases, p.logger)
	return p
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.Envelope, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.toAPIRequest(req), &openaiapi.RequestOptions{UserAgent: req.UserAgent})
	if err != nil {
		return nil, err
	}
	return toEnvelope(resp), nil
}

func (p *Provider) Stream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	stream, err := p.client.StreamChatCompletion(ctx, p.toAPIRequest(req), &openaiapi.RequestOptions{UserAgent: req.UserAgent})
	if err != nil {
		return nil, err
	}

	out := make(chan domain.StreamEvent)
	go translateStream(ctx, stream, out)
	return out, nil
}

func (p *Provider) Embed(ctx context.Context, req *domain.EmbeddingRequest) (*domain.EmbeddingResponse, error) {
	model := req.Model
	if model == "" {
		model = p.embeddingModel
	}
	if model == "" {
		model = provider.AliasEmbedding
	}

	resp, err := p.client.CreateEmbeddings(ctx, &openaiapi.EmbeddingRequest{
		Model: p.models.Resolve(model),
		Input: req.Input,
	}, nil)
	if err != nil {
		return nil, err
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return &domain.EmbeddingResponse{
		Model:   resp.Model,
		Vectors: vectors,
		Usage:   toUsage(resp.Usage),
	}, nil
}

// translateStream converts chunks into normalized events. It always finishes
// with exactly one Done unless ctx is cancelled first.
func translateStream(ctx context.Context, stream <-chan openaiapi.StreamResult, out chan<- domain.StreamEvent) {
	defer close(out)

	send := func(ev domain.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	finish := ""
	var usage *domain.Usage
	ids := make(map[int]string)

	for result := range stream {
		if result.Err != nil {
			send(domain.Done(normalizeFinish(finish, len(ids) > 0), usage, result.Err))
			return
		}

		chunk := result.Chunk
		if chunk.Usage != nil {
			u := toUsage(*chunk.Usage)
			usage = &u
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if !send(domain.TextDelta(choice.Delta.Content)) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			delta := &domain.ToolCallDelta{Index: tc.Index, ID: tc.ID}
			if tc.Function != nil {
				delta.FunctionName = tc.Function.Name
				delta.ArgumentsDelta = tc.Function.Arguments
			}
			if _, seen := ids[tc.Index]; !seen {
				if delta.ID == "" {
					delta.ID = provider.ToolCallID(delta.FunctionName, tc.Index)
				}
				ids[tc.Index] = delta.ID
			}
			if !send(domain.StreamEvent{Kind: domain.EventToolCallDelta, ToolCall: delta}) {
				return
			}
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finish = *choice.FinishReason
		}
	}

	var err error
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	send(domain.Done(normalizeFinish(finish, len(ids) > 0), usage, err))
}

func (p *Provider) toAPIRequest(req *domain.CompletionRequest) *openaiapi.ChatCompletionRequest {
	messages := make([]openaiapi.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msg := openaiapi.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openaiapi.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openaiapi.FunctionCall{
					Name:      tc.FunctionName,
					Arguments: tc.ArgumentsJSON,
				},
			})
		}
		messages[i] = msg
	}

	apiReq := &openaiapi.ChatCompletionRequest{
		Model:       p.models.Resolve(req.Model),
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if req.JSONOnly {
		apiReq.ResponseFormat = &openaiapi.ResponseFormat{Type: "json_object"}
	}

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openaiapi.Tool{
			Type: "function",
			Function: openaiapi.FunctionTool{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	if req.ToolChoice != nil {
		apiReq.ToolChoice = toAPIToolChoice(req.ToolChoice)
	}

	return apiReq
}

func toAPIToolChoice(tc *domain.ToolChoice) any {
	if tc.Mode == domain.ToolChoiceFunction {
		named := openaiapi.NamedToolChoice{Type: "function"}
		named.Function.Name = tc.Function
		return named
	}
	return string(tc.Mode)
}

func toEnvelope(resp *openaiapi.ChatCompletionResponse) *domain.Envelope {
	env := &domain.Envelope{
		Model: resp.Model,
		Usage: toUsage(resp.Usage),
	}
	if len(resp.Choices) == 0 {
		env.Choices = []domain.Choice{{Message: domain.NewTextMessage(domain.RoleAssistant, ""), FinishReason: domain.FinishStop}}
		return env
	}

	c := resp.Choices[0]
	msg := domain.ChatMessage{Role: domain.RoleAssistant, Content: c.Message.Content}
	if msg.Content == nil {
		empty := ""
		msg.Content = &empty
	}
	for i, tc := range c.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = provider.ToolCallID(tc.Function.Name, i)
		}
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:            id,
			FunctionName:  tc.Function.Name,
			ArgumentsJSON: tc.Function.Arguments,
		})
	}

	env.Choices = []domain.Choice{{
		Message:      msg,
		FinishReason: normalizeFinish(c.FinishReason, len(msg.ToolCalls) > 0),
	}}
	return env
}

func normalizeFinish(reason string, hasToolCalls bool) string {
	if hasToolCalls {
		return domain.FinishToolCalls
	}
	switch reason {
	case "length":
		return domain.FinishLength
	case "content_filter":
		return domain.FinishContentFilter
	case "tool_calls", "function_call":
		return domain.FinishToolCalls
	default:
		return domain.FinishStop
	}
}

func toUsage(u openaiapi.Usage) domain.Usage {
	return domain.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
