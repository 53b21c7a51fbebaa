// Package memory keeps conversations in process memory. Everything is lost on
// restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/storage"
)

type conversation struct {
	turns []storage.Turn
	last  *domain.Directive
}

type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
}

var _ storage.ConversationStore = (*Store)(nil)

func New() *Store {
	return &Store{conversations: make(map[string]*conversation)}
}

func (s *Store) SaveTurn(_ context.Context, turn *storage.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[turn.ConversationID]
	if !ok {
		c = &conversation{}
		s.conversations[turn.ConversationID] = c
	}
	c.turns = append(c.turns, *turn)
	if turn.Directive != nil {
		c.last = turn.Directive
	}
	return nil
}

func (s *Store) LastDirective(_ context.Context, conversationID string) (*domain.Directive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.conversations[conversationID]; ok {
		return c.last, nil
	}
	return nil, nil
}

// History copies out the tail so callers never alias the stored slice.
func (s *Store) History(_ context.Context, conversationID string, limit int) ([]storage.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return []storage.Turn{}, nil
	}
	start := 0
	if limit > 0 && len(c.turns) > limit {
		start = len(c.turns) - limit
	}
	return append([]storage.Turn(nil), c.turns[start:]...), nil
}

func (s *Store) Close() error { return nil }
