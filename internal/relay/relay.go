// Package relay runs one chat turn end to end: it calls the upstream provider,
// forwards prose as it arrives, pulls the embedded scene block out of the
// stream, repairs and validates it, and emits at most one directive.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/scene-gateway/internal/config"
	"github.com/tjfontaine/scene-gateway/internal/directive"
	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/publish"
	"github.com/tjfontaine/scene-gateway/internal/storage"
	"github.com/tjfontaine/scene-gateway/internal/tokens"
)

const tracerName = "github.com/tjfontaine/scene-gateway/internal/relay"

const userAgent = "scene-gateway"

// ProviderSource looks up a provider by configured name.
type ProviderSource interface {
	Get(name string) (domain.Provider, bool)
}

// Options wires a Relay. Providers is required; Store, Publisher, Advisor
// and Tokens may be left nil.
type Options struct {
	Providers ProviderSource
	Relay     config.RelayConfig
	Directive config.DirectiveConfig
	Store     storage.ConversationStore
	Publisher publish.Publisher
	Advisor   Advisor
	Tokens    *tokens.Registry
	Logger    *slog.Logger
}

type Relay struct {
	providers ProviderSource
	cfg       config.RelayConfig
	markers   config.DirectiveConfig
	validator *directive.Validator
	store     storage.ConversationStore
	publisher publish.Publisher
	advisor   Advisor
	tokens    *tokens.Registry
	logger    *slog.Logger
	tracer    trace.Tracer
}

func New(opts Options) *Relay {
	r := &Relay{
		providers: opts.Providers,
		cfg:       opts.Relay,
		markers:   opts.Directive,
		validator: directive.NewValidator(opts.Directive.OverlapPasses),
		store:     opts.Store,
		publisher: opts.Publisher,
		advisor:   opts.Advisor,
		tokens:    opts.Tokens,
		logger:    opts.Logger,
		tracer:    otel.Tracer(tracerName),
	}
	if r.markers.StartMarker == "" {
		r.markers.StartMarker = directive.DefaultStartMarker
	}
	if r.markers.EndMarker == "" {
		r.markers.EndMarker = directive.DefaultEndMarker
	}
	if r.publisher == nil {
		r.publisher = publish.Noop{}
	}
	if r.tokens == nil {
		r.tokens = tokens.NewRegistry()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.advisor == nil {
		r.advisor = NewSuggestionAdvisor(opts.Relay.Suggestions, nil, "", r.logger)
	}
	labels, ok := directive.LabelsFor(opts.Directive.LabelLocale)
	if !ok {
		r.logger.Warn("unknown label locale, labels left as written", "label_locale", opts.Directive.LabelLocale)
	}
	r.validator.Labels = labels
	return r
}

// turn is the prepared state of one request.
type turn struct {
	in             ChatRequest
	conversationID string
	providerName   string
	provider       domain.Provider
	req            *domain.CompletionRequest
	known          []string
	advice         Advice
	logger         *slog.Logger
}

func (r *Relay) prepare(ctx context.Context, in ChatRequest) (*turn, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, domain.ErrInvalidRequest("message is required")
	}
	if in.ConversationID != "" && !domain.ValidConversationID(in.ConversationID) {
		return nil, domain.ErrInvalidRequest("conversationId must be 1-128 letters, digits, '-' or '_'")
	}

	name := in.Provider
	if name == "" {
		name = r.cfg.DefaultProvider
	}
	p, ok := r.providers.Get(name)
	if !ok {
		return nil, domain.ErrInvalidRequest(fmt.Sprintf("unknown provider %q", name))
	}

	t := &turn{
		in:             in,
		conversationID: in.ConversationID,
		providerName:   name,
		provider:       p,
	}
	if t.conversationID == "" {
		t.conversationID = uuid.NewString()
	}
	t.logger = r.logger.With("conversation_id", t.conversationID, "provider", name)

	known := in.KnownState
	history := in.History
	if in.ConversationID != "" && r.store != nil {
		if known == nil {
			d, err := r.store.LastDirective(ctx, in.ConversationID)
			if err != nil {
				t.logger.Warn("failed to load last directive", "error", err)
			}
			known = d
		}
		if len(history) == 0 {
			turns, err := r.store.History(ctx, in.ConversationID, r.cfg.HistoryLimit)
			if err != nil {
				t.logger.Warn("failed to load history", "error", err)
			}
			for _, st := range turns {
				history = append(history, st.Messages()...)
			}
		}
	}
	if limit := 2 * r.cfg.HistoryLimit; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	t.known = known.ZoneIDs()

	temp := r.cfg.Temperature
	model := in.Model
	if model == "" {
		model = r.cfg.DefaultModel
	}
	t.req = &domain.CompletionRequest{
		Model:       model,
		Messages:    buildPrompt(r.cfg.SystemPrompt, r.markers.StartMarker, r.markers.EndMarker, r.validator.Labels, t.known, history, in.Message),
		Temperature: &temp,
		MaxTokens:   r.cfg.MaxTokens,
		UserAgent:   userAgent,
	}

	advice, err := r.advisor.Advise(ctx, in)
	if err != nil {
		t.logger.Warn("advisor failed", "error", err)
	}
	t.advice = advice
	return t, nil
}

func (t *turn) metadata() Metadata {
	return Metadata{
		ConversationID: t.conversationID,
		Suggestions:    t.advice.Suggestions,
		Scores:         t.advice.Scores,
	}
}

// Stream runs a turn and emits its events in order. Errors returned before the
// first event (bad request, upstream refused the call) leave nothing emitted;
// a transport failure mid-stream is emitted as an error event and returned.
// When ctx is cancelled Stream stops reading, emits nothing further and
// returns ctx.Err().
func (r *Relay) Stream(ctx context.Context, in ChatRequest, emit func(Event) error) error {
	ctx, span := r.tracer.Start(ctx, "relay.stream")
	defer span.End()

	t, err := r.prepare(ctx, in)
	if err != nil {
		recordError(span, err)
		return err
	}
	span.SetAttributes(
		attribute.String("conversation.id", t.conversationID),
		attribute.String("llm.provider", t.providerName),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := t.provider.Stream(ctx, t.req)
	if err != nil {
		recordError(span, err)
		return err
	}

	if err := emit(metadataEvent(t.metadata())); err != nil {
		return err
	}

	ext := directive.NewExtractor(r.markers.StartMarker, r.markers.EndMarker)
	var (
		text, raw strings.Builder
		d         *domain.Directive
		done      domain.StreamEvent
	)

	// emitSegments forwards text and resolves a closed block.
	emitSegments := func(segs []directive.Segment) error {
		for _, seg := range segs {
			switch seg.Kind {
			case directive.SegmentText:
				text.WriteString(seg.Text)
				if err := emit(textEvent(seg.Text)); err != nil {
					return err
				}
			case directive.SegmentBlock:
				d = r.resolve(ctx, t, seg.Text, false)
				if d == nil || ctx.Err() != nil {
					continue
				}
				if err := emit(directiveEvent(d)); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for ev := range events {
		if ctx.Err() != nil {
			break
		}
		switch ev.Kind {
		case domain.EventTextDelta:
			raw.WriteString(ev.Text)
			if err := emitSegments(ext.Feed(ev.Text)); err != nil {
				return err
			}
		case domain.EventToolCallDelta:
			t.logger.Debug("ignoring tool call delta")
		case domain.EventDone:
			done = ev
		}
	}

	if err := ctx.Err(); err != nil {
		t.logger.Info("turn cancelled", "error", err)
		span.SetAttributes(attribute.Bool("relay.cancelled", true))
		return err
	}
	if done.Err != nil {
		recordError(span, done.Err)
		t.logger.Error("upstream stream failed", "error", done.Err)
		if err := emit(ErrorEvent(done.Err)); err != nil {
			return err
		}
		return done.Err
	}

	tail, truncated := ext.Finish()
	if err := emitSegments(tail); err != nil {
		return err
	}
	if truncated != nil && d == nil {
		if d = r.resolve(ctx, t, *truncated, true); d != nil {
			if err := emit(directiveEvent(d)); err != nil {
				return err
			}
		}
	}
	span.SetAttributes(attribute.Bool("relay.directive", d != nil))

	usage := r.usage(t, done.Usage, raw.String())
	r.finish(ctx, t, text.String(), d)

	return emit(doneEvent(Done{
		ConversationID: t.conversationID,
		FinishReason:   done.FinishReason,
		Usage:          usage,
	}))
}

// Complete runs a turn without streaming and returns the same content as one response.
func (r *Relay) Complete(ctx context.Context, in ChatRequest) (*ChatResponse, error) {
	ctx, span := r.tracer.Start(ctx, "relay.complete")
	defer span.End()

	t, err := r.prepare(ctx, in)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("conversation.id", t.conversationID),
		attribute.String("llm.provider", t.providerName),
	)

	env, err := t.provider.Complete(ctx, t.req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	choice := env.FirstChoice()
	content := choice.Message.Text()

	ext := directive.NewExtractor(r.markers.StartMarker, r.markers.EndMarker)
	var (
		text strings.Builder
		d    *domain.Directive
	)
	segs := ext.Feed(content)
	tail, truncated := ext.Finish()
	for _, seg := range append(segs, tail...) {
		switch seg.Kind {
		case directive.SegmentText:
			text.WriteString(seg.Text)
		case directive.SegmentBlock:
			d = r.resolve(ctx, t, seg.Text, false)
		}
	}
	if truncated != nil && d == nil {
		d = r.resolve(ctx, t, *truncated, true)
	}
	span.SetAttributes(attribute.Bool("relay.directive", d != nil))

	var usage *domain.Usage
	if env.Usage.TotalTokens > 0 {
		usage = &env.Usage
	}

	resp := &ChatResponse{
		ConversationID: t.conversationID,
		Content:        text.String(),
		Directive:      d,
		Suggestions:    t.advice.Suggestions,
		Scores:         t.advice.Scores,
		FinishReason:   choice.FinishReason,
		Usage:          r.usage(t, usage, content),
	}
	r.finish(ctx, t, resp.Content, d)
	return resp, nil
}

// resolve turns a block body into a validated directive, or nil. Failures
// here only cost the turn its scene, so they are logged and swallowed.
func (r *Relay) resolve(ctx context.Context, t *turn, body string, truncated bool) *domain.Directive {
	var (
		d  *domain.Directive
		ok bool
	)
	if truncated {
		_, span := r.tracer.Start(ctx, "directive.repair")
		d, ok = directive.Repair(body)
		span.SetAttributes(attribute.Int("directive.bytes", len(body)), attribute.Bool("directive.recovered", ok))
		span.End()
		if !ok {
			t.logger.Warn("truncated directive dropped", "bytes", len(body))
			return nil
		}
	} else if d, ok = directive.Parse(body); !ok {
		t.logger.Warn("malformed directive dropped", "bytes", len(body))
		return nil
	}

	_, span := r.tracer.Start(ctx, "directive.validate")
	defer span.End()
	v, ok := r.validator.Validate(d, t.known)
	if !ok {
		span.SetAttributes(attribute.Bool("directive.valid", false))
		t.logger.Warn("directive without valid vizState dropped", "viz_state", string(d.VizState))
		return nil
	}
	span.SetAttributes(
		attribute.Bool("directive.valid", true),
		attribute.String("directive.viz_state", string(v.VizState)),
		attribute.Int("directive.zones", len(v.Zones)),
	)
	return v
}

func (r *Relay) usage(t *turn, reported *domain.Usage, completion string) domain.Usage {
	if reported != nil {
		return *reported
	}
	return r.tokens.Usage(t.req.Model, t.req.Messages, completion)
}

// finish persists the turn and publishes its directive. Both are best effort.
func (r *Relay) finish(ctx context.Context, t *turn, text string, d *domain.Directive) {
	if r.store != nil {
		err := r.store.SaveTurn(ctx, &storage.Turn{
			ConversationID: t.conversationID,
			UserText:       t.in.Message,
			AssistantText:  text,
			Directive:      d,
		})
		if err != nil {
			t.logger.Error("failed to save turn", "error", err)
		}
	}
	if d != nil {
		if err := r.publisher.Publish(ctx, t.conversationID, d); err != nil {
			t.logger.Error("failed to publish directive", "error", err)
		}
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
