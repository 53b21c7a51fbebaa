package provider

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

const tracerName = "github.com/tjfontaine/scene-gateway/internal/provider"

// TracedProvider wraps a provider with one span per upstream call.
// Stream spans end when the Done event passes through.
type TracedProvider struct {
	inner  domain.Provider
	tracer trace.Tracer
}

// NewTracedProvider wraps inner using the global tracer provider.
func NewTracedProvider(inner domain.Provider) *TracedProvider {
	return &TracedProvider{inner: inner, tracer: otel.Tracer(tracerName)}
}

func (p *TracedProvider) Name() string {
	return p.inner.Name()
}

func (p *TracedProvider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.Envelope, error) {
	ctx, span := p.start(ctx, "provider.complete", req.Model)
	defer span.End()

	env, err := p.inner.Complete(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("llm.response_model", env.Model),
		attribute.String("llm.finish_reason", env.FirstChoice().FinishReason),
		attribute.Int("llm.total_tokens", env.Usage.TotalTokens),
	)
	return env, nil
}

func (p *TracedProvider) Stream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	ctx, span := p.start(ctx, "provider.stream", req.Model)

	in, err := p.inner.Stream(ctx, req)
	if err != nil {
		recordError(span, err)
		span.End()
		return nil, err
	}

	out := make(chan domain.StreamEvent)
	go func() {
		defer close(out)
		defer span.End()
		deltas := 0
		for ev := range in {
			switch ev.Kind {
			case domain.EventTextDelta:
				deltas++
			case domain.EventDone:
				span.SetAttributes(
					attribute.Int("llm.text_deltas", deltas),
					attribute.String("llm.finish_reason", ev.FinishReason),
				)
				if ev.Err != nil {
					recordError(span, ev.Err)
				}
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				// drain so the inner goroutine can exit
				for range in {
				}
				return
			}
		}
	}()
	return out, nil
}

func (p *TracedProvider) Embed(ctx context.Context, req *domain.EmbeddingRequest) (*domain.EmbeddingResponse, error) {
	ctx, span := p.start(ctx, "provider.embed", req.Model)
	defer span.End()

	span.SetAttributes(attribute.Int("llm.inputs", len(req.Input)))
	resp, err := p.inner.Embed(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return resp, nil
}

func (p *TracedProvider) start(ctx context.Context, name, model string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("llm.provider", p.inner.Name()),
		attribute.String("llm.request_model", model),
	))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
