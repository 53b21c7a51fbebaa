// Package publish fans validated directives out to downstream scene renderers.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// Publisher delivers a conversation's latest directive.
type Publisher interface {
	Publish(ctx context.Context, conversationID string, d *domain.Directive) error
	Close() error
}

// Message is the payload renderers receive.
type Message struct {
	ConversationID string            `json:"conversationId"`
	Directive      *domain.Directive `json:"directive"`
	PublishedAt    time.Time         `json:"publishedAt"`
}

// TopicDirective is the topic a conversation's directives are published on.
func TopicDirective(prefix, conversationID string) string {
	return fmt.Sprintf("%s/conversation/%s/directive", prefix, conversationID)
}

// Noop discards every directive.
type Noop struct{}

func (Noop) Publish(context.Context, string, *domain.Directive) error { return nil }
func (Noop) Close() error                                             { return nil }
