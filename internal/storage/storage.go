// Package storage defines the conversation store the relay persists turns to.
package storage

import (
	"context"
	"time"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// Turn is one user message and the assistant reply it produced.
type Turn struct {
	ConversationID string            `json:"conversationId" db:"conversation_id"`
	UserText       string            `json:"userText" db:"user_text"`
	AssistantText  string            `json:"assistantText" db:"assistant_text"`
	Directive      *domain.Directive `json:"directive,omitempty" db:"-"`
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
}

// Messages renders the turn as a user/assistant message pair.
func (t Turn) Messages() []domain.ChatMessage {
	return []domain.ChatMessage{
		domain.NewTextMessage(domain.RoleUser, t.UserText),
		domain.NewTextMessage(domain.RoleAssistant, t.AssistantText),
	}
}

// ConversationStore persists turns per conversation.
type ConversationStore interface {
	// SaveTurn appends a turn, creating the conversation if needed.
	SaveTurn(ctx context.Context, turn *Turn) error

	// LastDirective returns the most recent directive of a conversation, or nil
	// when none was stored.
	LastDirective(ctx context.Context, conversationID string) (*domain.Directive, error)

	// History returns up to limit most recent turns, oldest first. A limit of 0
	// returns every turn.
	History(ctx context.Context, conversationID string, limit int) ([]Turn, error)

	Close() error
}
