package domain

import (
	"context"
)

// Provider defines the interface for upstream LLM adapters.
type Provider interface {
	Name() string

	// Complete handles unary requests (non-streaming).
	Complete(ctx context.Context, req *CompletionRequest) (*Envelope, error)

	// Stream returns a channel of normalized events.
	// The channel MUST be closed by the provider after the Done event, and the
	// upstream body released once ctx is cancelled.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error)

	// Embed generates one vector per input string.
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)
}
