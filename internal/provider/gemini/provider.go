// Package gemini adapts the Gemini generateContent API to the normalized
// completion and stream model.
package gemini

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	geminiapi "github.com/tjfontaine/scene-gateway/internal/api/gemini"
	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/provider"
)

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

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

func WithName(name string) ProviderOption {
	return func(p *Provider) {
		p.name = name
	}
}

func WithEmbeddingModel(model string) ProviderOption {
	return func(p *Provider) {
		p.embeddingModel = model
	}
}

// Provider implements domain.Provider against the Gemini API.
type Provider struct {
	client         *geminiapi.Client
	name           string
	baseURL        string
	httpClient     *http.Client
	logger         *slog.Logger
	aliases        map[string]string
	embeddingModel string
	models         *provider.AliasResolver
}

// New creates a new Gemini provider.
func New(apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{
		name:   ProviderType,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	clientOpts := []geminiapi.ClientOption{geminiapi.WithLogger(p.logger)}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, geminiapi.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, geminiapi.WithHTTPClient(p.httpClient))
	}

	p.client = geminiapi.NewClient(apiKey, clientOpts...)
	p.models = provider.NewAliasResolver(p.name, provider.GeminiAliases, p.aliases, p.logger)
	return p
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.Envelope, error) {
	model := p.models.Resolve(req.Model)
	resp, err := p.client.GenerateContent(ctx, model, p.toAPIRequest(req), &geminiapi.RequestOptions{UserAgent: req.UserAgent})
	if err != nil {
		return nil, err
	}

	env := toEnvelope(resp)
	if env.Model == "" {
		env.Model = model
	}
	return env, nil
}

func (p *Provider) Stream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	model := p.models.Resolve(req.Model)
	stream, err := p.client.StreamGenerateContent(ctx, model, p.toAPIRequest(req), &geminiapi.RequestOptions{UserAgent: req.UserAgent})
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
	model = strings.TrimPrefix(p.models.Resolve(model), "models/")

	batch := &geminiapi.BatchEmbedContentsRequest{Requests: make([]geminiapi.EmbedContentRequest, len(req.Input))}
	for i, text := range req.Input {
		batch.Requests[i] = geminiapi.EmbedContentRequest{
			Model:   "models/" + model,
			Content: geminiapi.Content{Parts: []geminiapi.Part{{Text: text}}},
		}
	}

	resp, err := p.client.BatchEmbedContents(ctx, model, batch, nil)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	// The embedding API reports no token usage.
	return &domain.EmbeddingResponse{Model: model, Vectors: vectors}, nil
}

func translateStream(ctx context.Context, stream <-chan geminiapi.StreamResult, out chan<- domain.StreamEvent) {
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
	calls := 0

	for result := range stream {
		if result.Err != nil {
			send(domain.Done(normalizeFinish(finish, calls > 0), usage, result.Err))
			return
		}

		frame := result.Frame
		if frame.UsageMetadata != nil {
			u := toUsage(frame.UsageMetadata)
			usage = &u
		}
		if len(frame.Candidates) == 0 {
			continue
		}

		cand := frame.Candidates[0]
		if text := cand.Text(); text != "" {
			if !send(domain.TextDelta(text)) {
				return
			}
		}
		// Gemini sends each function call whole, never split across frames.
		for _, part := range cand.Content.Parts {
			if part.FunctionCall == nil {
				continue
			}
			tc := toToolCall(part.FunctionCall, calls)
			delta := &domain.ToolCallDelta{
				Index:          calls,
				ID:             tc.ID,
				FunctionName:   tc.FunctionName,
				ArgumentsDelta: tc.ArgumentsJSON,
			}
			calls++
			if !send(domain.StreamEvent{Kind: domain.EventToolCallDelta, ToolCall: delta}) {
				return
			}
		}
		if cand.FinishReason != "" {
			finish = cand.FinishReason
		}
	}

	var err error
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	send(domain.Done(normalizeFinish(finish, calls > 0), usage, err))
}

// toAPIRequest hoists system messages into systemInstruction and maps the
// remaining turns onto user/model contents.
func (p *Provider) toAPIRequest(req *domain.CompletionRequest) *geminiapi.GenerateContentRequest {
	apiReq := &geminiapi.GenerateContentRequest{}

	var system []string
	toolNames := make(map[string]string)

	for _, m := range req.Messages {
		var content geminiapi.Content

		switch m.Role {
		case domain.RoleSystem:
			if text := m.Text(); text != "" {
				system = append(system, text)
			}
			continue

		case domain.RoleAssistant:
			content.Role = geminiapi.RoleModel
			if text := m.Text(); text != "" {
				content.Parts = append(content.Parts, geminiapi.Part{Text: text})
			}
			for _, tc := range m.ToolCalls {
				toolNames[tc.ID] = tc.FunctionName
				content.Parts = append(content.Parts, geminiapi.Part{FunctionCall: &geminiapi.FunctionCall{
					ID:   tc.ID,
					Name: tc.FunctionName,
					Args: p.decodeObject(tc.ArgumentsJSON, "args"),
				}})
			}

		case domain.RoleTool:
			content.Role = geminiapi.RoleUser
			content.Parts = []geminiapi.Part{{FunctionResponse: &geminiapi.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     toolNames[m.ToolCallID],
				Response: p.decodeObject(m.Text(), "content"),
			}}}

		default:
			content.Role = geminiapi.RoleUser
			content.Parts = []geminiapi.Part{{Text: m.Text()}}
		}

		if len(content.Parts) == 0 {
			continue
		}
		// Adjacent turns from the same side are merged; tool results following
		// a user turn end up in one content.
		if n := len(apiReq.Contents); n > 0 && apiReq.Contents[n-1].Role == content.Role {
			apiReq.Contents[n-1].Parts = append(apiReq.Contents[n-1].Parts, content.Parts...)
			continue
		}
		apiReq.Contents = append(apiReq.Contents, content)
	}

	if len(system) > 0 {
		apiReq.SystemInstruction = &geminiapi.Content{
			Parts: []geminiapi.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}

	if req.Temperature != nil || req.MaxTokens > 0 || req.JSONOnly {
		gc := &geminiapi.GenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
		if req.JSONOnly {
			gc.ResponseMIMEType = "application/json"
		}
		apiReq.GenerationConfig = gc
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiapi.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = geminiapi.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
		apiReq.Tools = []geminiapi.Tool{{FunctionDeclarations: decls}}
	}

	if req.ToolChoice != nil {
		apiReq.ToolConfig = toToolConfig(req.ToolChoice)
	}

	return apiReq
}

// decodeObject parses s as a JSON object. Anything else is wrapped under key.
func (p *Provider) decodeObject(s, key string) map[string]any {
	if s == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
		return obj
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return map[string]any{key: v}
	}
	p.logger.Debug("wrapping non-JSON value for gemini", slog.String("field", key))
	return map[string]any{key: s}
}

func toToolConfig(tc *domain.ToolChoice) *geminiapi.ToolConfig {
	cfg := &geminiapi.FunctionCallingConfig{}
	switch tc.Mode {
	case domain.ToolChoiceNone:
		cfg.Mode = geminiapi.ModeNone
	case domain.ToolChoiceRequired:
		cfg.Mode = geminiapi.ModeAny
	case domain.ToolChoiceFunction:
		cfg.Mode = geminiapi.ModeAny
		cfg.AllowedFunctionNames = []string{tc.Function}
	default:
		cfg.Mode = geminiapi.ModeAuto
	}
	return &geminiapi.ToolConfig{FunctionCallingConfig: cfg}
}

func toEnvelope(resp *geminiapi.GenerateContentResponse) *domain.Envelope {
	env := &domain.Envelope{Model: resp.ModelVersion}
	if resp.UsageMetadata != nil {
		env.Usage = toUsage(resp.UsageMetadata)
	}
	if len(resp.Candidates) == 0 {
		env.Choices = []domain.Choice{{Message: domain.NewTextMessage(domain.RoleAssistant, ""), FinishReason: domain.FinishStop}}
		return env
	}

	cand := resp.Candidates[0]
	msg := domain.NewTextMessage(domain.RoleAssistant, cand.Text())
	for _, part := range cand.Content.Parts {
		if part.FunctionCall != nil {
			msg.ToolCalls = append(msg.ToolCalls, toToolCall(part.FunctionCall, len(msg.ToolCalls)))
		}
	}

	env.Choices = []domain.Choice{{
		Message:      msg,
		FinishReason: normalizeFinish(cand.FinishReason, len(msg.ToolCalls) > 0),
	}}
	return env
}

func toToolCall(fc *geminiapi.FunctionCall, index int) domain.ToolCall {
	id := fc.ID
	if id == "" {
		id = provider.ToolCallID(fc.Name, index)
	}
	args := "{}"
	if len(fc.Args) > 0 {
		if b, err := json.Marshal(fc.Args); err == nil {
			args = string(b)
		}
	}
	return domain.ToolCall{ID: id, FunctionName: fc.Name, ArgumentsJSON: args}
}

func normalizeFinish(reason string, hasToolCalls bool) string {
	if hasToolCalls {
		return domain.FinishToolCalls
	}
	switch reason {
	case geminiapi.FinishMaxTokens:
		return domain.FinishLength
	case geminiapi.FinishSafety, geminiapi.FinishRecitation, "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return domain.FinishContentFilter
	default:
		return domain.FinishStop
	}
}

func toUsage(u *geminiapi.UsageMetadata) domain.Usage {
	return domain.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
	}
}
