package relay

import (
	"errors"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// EventType names a client-facing event.
type EventType string

const (
	EventMetadata  EventType = "metadata"
	EventText      EventType = "text"
	EventDirective EventType = "directive"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is one item of the client-facing sequence:
// metadata, text*, at most one directive, then done or error.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Metadata is computed before the model answers and does not depend on it.
type Metadata struct {
	ConversationID string             `json:"conversationId"`
	Suggestions    []string           `json:"suggestions,omitempty"`
	Scores         map[string]float64 `json:"scores,omitempty"`
}

type Text struct {
	Content string `json:"content"`
}

type Done struct {
	ConversationID string       `json:"conversationId"`
	FinishReason   string       `json:"finishReason,omitempty"`
	Usage          domain.Usage `json:"usage"`
}

type Error struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

func metadataEvent(m Metadata) Event           { return Event{Type: EventMetadata, Data: m} }
func textEvent(s string) Event                 { return Event{Type: EventText, Data: Text{Content: s}} }
func directiveEvent(d *domain.Directive) Event { return Event{Type: EventDirective, Data: d} }
func doneEvent(d Done) Event                   { return Event{Type: EventDone, Data: d} }

// ErrorEvent reports err to the client. Upstream errors keep their type.
func ErrorEvent(err error) Event {
	e := Error{Message: err.Error()}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		e.Message = apiErr.Message
		e.Type = string(apiErr.Type)
	}
	return Event{Type: EventError, Data: e}
}

// ChatRequest is one inbound chat turn.
type ChatRequest struct {
	Message        string               `json:"message"`
	History        []domain.ChatMessage `json:"history,omitempty"`
	ConversationID string               `json:"conversationId,omitempty"`
	// KnownState is the directive the client is currently rendering. Its zone
	// ids are kept stable across turns.
	KnownState *domain.Directive `json:"knownState,omitempty"`
	Stream     bool              `json:"stream"`
	Provider   string            `json:"provider,omitempty"`
	Model      string            `json:"model,omitempty"`
}

// ChatResponse is the non-streaming counterpart of the event sequence.
type ChatResponse struct {
	ConversationID string             `json:"conversationId"`
	Content        string             `json:"content"`
	Directive      *domain.Directive  `json:"directive,omitempty"`
	Suggestions    []string           `json:"suggestions,omitempty"`
	Scores         map[string]float64 `json:"scores,omitempty"`
	FinishReason   string             `json:"finishReason,omitempty"`
	Usage          domain.Usage       `json:"usage"`
}
