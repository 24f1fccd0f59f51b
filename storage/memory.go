// In-memory conversation and exchange storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/notewell/notewell/llm"
)

// InMemoryStorage implements ConversationStorage and ExchangeStorage
// using in-memory maps. Data is lost when the process terminates.
type InMemoryStorage struct {
	mu        sync.RWMutex
	sessions  map[string][]llm.ChatMessage
	exchanges map[string][]Exchange
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		sessions:  make(map[string][]llm.ChatMessage),
		exchanges: make(map[string][]Exchange),
	}
}

// Save saves conversation history for a session.
func (s *InMemoryStorage) Save(ctx context.Context, sessionID string, history []llm.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Make a copy to avoid external mutations
	copied := make([]llm.ChatMessage, len(history))
	copy(copied, history)
	s.sessions[sessionID] = copied

	return nil
}

// Load loads conversation history for a session.
// Returns empty slice if session doesn't exist.
func (s *InMemoryStorage) Load(ctx context.Context, sessionID string) ([]llm.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return []llm.ChatMessage{}, nil
	}

	// Return a copy to avoid external mutations
	copied := make([]llm.ChatMessage, len(history))
	copy(copied, history)
	return copied, nil
}

// Delete deletes conversation history and exchanges for a session.
func (s *InMemoryStorage) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	delete(s.exchanges, sessionID)
	return nil
}

// ListSessions lists all session IDs.
func (s *InMemoryStorage) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.sessions))
	for sessionID := range s.sessions {
		sessions = append(sessions, sessionID)
	}
	return sessions, nil
}

// Exists checks if a session exists.
func (s *InMemoryStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[sessionID]
	return ok, nil
}

// StoreExchange persists a completed exchange.
func (s *InMemoryStorage) StoreExchange(ctx context.Context, exchange Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exchanges[exchange.SessionID] = append(s.exchanges[exchange.SessionID], exchange)
	return nil
}

// ListExchanges returns the most recent exchanges for a session, newest first.
func (s *InMemoryStorage) ListExchanges(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.exchanges[sessionID]
	copied := make([]Exchange, len(stored))
	copy(copied, stored)

	// Newest first; insertion order breaks timestamp ties.
	sort.SliceStable(copied, func(i, j int) bool {
		return copied[i].CreatedAt > copied[j].CreatedAt
	})

	if limit >= 0 && limit < len(copied) {
		copied = copied[:limit]
	}
	return copied, nil
}

// DeleteSessionExchanges removes all exchanges for a session.
func (s *InMemoryStorage) DeleteSessionExchanges(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.exchanges, sessionID)
	return nil
}

// Verify InMemoryStorage implements all interfaces
var _ ConversationStorage = (*InMemoryStorage)(nil)
var _ ExchangeStorage = (*InMemoryStorage)(nil)
