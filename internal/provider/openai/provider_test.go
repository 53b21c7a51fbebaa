package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openaiapi "github.com/tjfontaine/scene-gateway/internal/api/openai"
	"github.com/tjfontaine/scene-gateway/internal/config"
	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/testutil"
)

func TestProvider_Complete_Replay(t *testing.T) {
	recorder, cleanup := testutil.NewVCRRecorder(t, "openai_complete")
	defer cleanup()

	p := New(testutil.APIKey(t, "OPENAI_API_KEY"), WithHTTPClient(testutil.VCRHTTPClient(recorder)))

	env, err := p.Complete(context.Background(), &domain.CompletionRequest{
		Model: "fast",
		Messages: []domain.ChatMessage{
			domain.NewTextMessage(domain.RoleSystem, "Answer briefly."),
			domain.NewTextMessage(domain.RoleUser, "Where should the fitting rooms go?"),
		},
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	choice := env.FirstChoice()
	if choice.Message.Text() == "" {
		t.Error("expected content in response")
	}
	if choice.FinishReason != domain.FinishStop {
		t.Errorf("finish = %q, want stop", choice.FinishReason)
	}
	if env.Usage.TotalTokens == 0 {
		t.Error("expected usage")
	}
}

func TestToAPIRequest(t *testing.T) {
	p := New("k", WithAliases(map[string]string{"house": "ft:gpt-4o-mini:acme"}))
	temp := 0.2

	req := &domain.CompletionRequest{
		Model: "house",
		Messages: []domain.ChatMessage{
			domain.NewTextMessage(domain.RoleSystem, "sys"),
			domain.NewTextMessage(domain.RoleUser, "hi"),
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c1", FunctionName: "lookup", ArgumentsJSON: `{"q":1}`}}},
			{Role: domain.RoleTool, Content: strPtr(`{"ok":true}`), ToolCallID: "c1"},
		},
		Temperature: &temp,
		MaxTokens:   128,
		JSONOnly:    true,
		Tools:       []domain.ToolDefinition{{Name: "lookup", Description: "find", Parameters: map[string]any{"type": "object"}}},
		ToolChoice:  &domain.ToolChoice{Mode: domain.ToolChoiceFunction, Function: "lookup"},
	}

	got := p.toAPIRequest(req)

	if got.Model != "ft:gpt-4o-mini:acme" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 4 || got.Messages[0].Role != "system" {
		t.Fatalf("system message must stay inline: %+v", got.Messages)
	}
	if got.Messages[2].Content != nil {
		t.Error("tool-call-only assistant message should encode null content")
	}
	if got.Messages[2].ToolCalls[0].Function.Name != "lookup" || got.Messages[2].ToolCalls[0].Type != "function" {
		t.Errorf("tool calls = %+v", got.Messages[2].ToolCalls)
	}
	if got.Messages[3].ToolCallID != "c1" {
		t.Errorf("tool call id = %q", got.Messages[3].ToolCallID)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("response format = %+v", got.ResponseFormat)
	}
	if got.Temperature == nil || *got.Temperature != 0.2 || got.MaxTokens != 128 {
		t.Errorf("sampling = %v %d", got.Temperature, got.MaxTokens)
	}
	if len(got.Tools) != 1 || got.Tools[0].Function.Name != "lookup" {
		t.Errorf("tools = %+v", got.Tools)
	}

	raw, err := json.Marshal(got.ToolChoice)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"type":"function","function":{"name":"lookup"}}` {
		t.Errorf("tool_choice = %s", raw)
	}

	req.ToolChoice = &domain.ToolChoice{Mode: domain.ToolChoiceRequired}
	if tc := p.toAPIRequest(req).ToolChoice; tc != "required" {
		t.Errorf("tool_choice = %v, want required", tc)
	}
}

func TestProvider_Complete(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantText   string
		wantFinish string
		wantCalls  int
	}{
		{
			name:       "text",
			body:       `{"model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"length"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`,
			wantText:   "hello",
			wantFinish: domain.FinishLength,
		},
		{
			name:       "no choices",
			body:       `{"model":"gpt-4o","choices":[]}`,
			wantText:   "",
			wantFinish: domain.FinishStop,
		},
		{
			name:       "tool calls without ids",
			body:       `{"model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":null,"tool_calls":[{"type":"function","function":{"name":"a","arguments":"{}"}},{"type":"function","function":{"name":"a","arguments":"{\"x\":1}"}}]},"finish_reason":"stop"}]}`,
			wantFinish: domain.FinishToolCalls,
			wantCalls:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/chat/completions" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer k" {
					t.Errorf("authorization = %q", r.Header.Get("Authorization"))
				}
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			p := New("k", WithBaseURL(server.URL))
			env, err := p.Complete(context.Background(), &domain.CompletionRequest{
				Messages: []domain.ChatMessage{domain.NewTextMessage(domain.RoleUser, "hi")},
			})
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}

			choice := env.FirstChoice()
			if choice.Message.Text() != tt.wantText {
				t.Errorf("text = %q, want %q", choice.Message.Text(), tt.wantText)
			}
			if choice.FinishReason != tt.wantFinish {
				t.Errorf("finish = %q, want %q", choice.FinishReason, tt.wantFinish)
			}
			if len(choice.Message.ToolCalls) != tt.wantCalls {
				t.Fatalf("tool calls = %d, want %d", len(choice.Message.ToolCalls), tt.wantCalls)
			}
			seen := map[string]bool{}
			for _, tc := range choice.Message.ToolCalls {
				if !strings.HasPrefix(tc.ID, "call_a_") {
					t.Errorf("synthetic id = %q", tc.ID)
				}
				if seen[tc.ID] {
					t.Errorf("duplicate id %q", tc.ID)
				}
				seen[tc.ID] = true
			}
		})
	}
}

func TestProvider_Complete_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"message":"The model 'nope' does not exist","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	p := New("k", WithBaseURL(server.URL))
	_, err := p.Complete(context.Background(), &domain.CompletionRequest{Model: "nope"})

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *domain.APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Body, "does not exist") || apiErr.Message != "The model 'nope' does not exist" {
		t.Errorf("error detail = %q / %q", apiErr.Message, apiErr.Body)
	}
}

func TestProvider_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiapi.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Errorf("stream flags = %v %+v", req.Stream, req.StreamOptions)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		// A frame split across two writes.
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"role":"assistant","content":"Hel`)
		flusher.Flush()
		io.WriteString(w, `lo"}}]}`+"\n\n")
		flusher.Flush()

		io.WriteString(w, "data: {not json}\n\n")
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":""}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":" world"},"finish_reason":"stop"}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":"after done"}}]}`+"\n\n")
	}))
	defer server.Close()

	p := New("k", WithBaseURL(server.URL))
	stream, err := p.Stream(context.Background(), &domain.CompletionRequest{
		Messages: []domain.ChatMessage{domain.NewTextMessage(domain.RoleUser, "hi")},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var deltas []string
	var done []domain.StreamEvent
	for ev := range stream {
		switch ev.Kind {
		case domain.EventTextDelta:
			if len(done) > 0 {
				t.Error("event after Done")
			}
			deltas = append(deltas, ev.Text)
		case domain.EventDone:
			done = append(done, ev)
		}
	}

	if strings.Join(deltas, "|") != "Hello| world" {
		t.Errorf("deltas = %q", deltas)
	}
	if len(done) != 1 {
		t.Fatalf("done events = %d, want 1", len(done))
	}
	if done[0].Err != nil || done[0].FinishReason != domain.FinishStop {
		t.Errorf("done = %+v", done[0])
	}
	if done[0].Usage == nil || done[0].Usage.TotalTokens != 6 {
		t.Errorf("usage = %+v", done[0].Usage)
	}
}

func TestProvider_Stream_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"type":"function","function":{"name":"lookup","arguments":""}}]}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":1}"}}]},"finish_reason":"tool_calls"}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := New("k", WithBaseURL(server.URL))
	stream, err := p.Stream(context.Background(), &domain.CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}

	var calls []*domain.ToolCallDelta
	var last domain.StreamEvent
	for ev := range stream {
		if ev.Kind == domain.EventToolCallDelta {
			calls = append(calls, ev.ToolCall)
		}
		last = ev
	}

	if len(calls) != 2 {
		t.Fatalf("tool call deltas = %d", len(calls))
	}
	if !strings.HasPrefix(calls[0].ID, "call_lookup_") {
		t.Errorf("first delta id = %q", calls[0].ID)
	}
	if calls[1].ID != "" || calls[1].ArgumentsDelta != `{"q":1}` {
		t.Errorf("second delta = %+v", calls[1])
	}
	if last.Kind != domain.EventDone || last.FinishReason != domain.FinishToolCalls {
		t.Errorf("last = %+v", last)
	}
}

func TestProvider_Stream_Cancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(release)
		flusher := w.(http.Flusher)
		for i := 0; ; i++ {
			select {
			case <-r.Context().Done():
				return
			default:
			}
			if _, err := fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"t%d\"}}]}\n\n", i); err != nil {
				return
			}
			flusher.Flush()
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := New("k", WithBaseURL(server.URL))
	stream, err := p.Stream(ctx, &domain.CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}

	<-stream
	cancel()
	for range stream {
	}
	<-release
}

func TestProvider_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiapi.EmbeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "text-embedding-3-small" {
			t.Errorf("model = %q", req.Model)
		}
		io.WriteString(w, `{"object":"list","model":"text-embedding-3-small","data":[{"index":1,"embedding":[0.2]},{"index":0,"embedding":[0.1]}],"usage":{"prompt_tokens":2,"total_tokens":2}}`)
	}))
	defer server.Close()

	p := New("k", WithBaseURL(server.URL))
	resp, err := p.Embed(context.Background(), &domain.EmbeddingRequest{Input: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(resp.Vectors) != 2 || resp.Vectors[0][0] != 0.1 || resp.Vectors[1][0] != 0.2 {
		t.Errorf("vectors = %v", resp.Vectors)
	}
}

func TestValidateConfig(t *testing.T) {
	err := ValidateConfig(config.ProviderConfig{Name: "primary", Type: "openai"})
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("error = %v", err)
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("error does not name env var: %v", err)
	}
	if err := ValidateConfig(config.ProviderConfig{Name: "primary", Type: "openai", APIKey: "k"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func strPtr(s string) *string { return &s }
