// Package storage provides conversation and exchange persistence.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interfaces
// - Allows swapping between memory and SQLite without API changes
// - Each storage implementation encapsulates its own data structures and protocols

package storage

import (
	"context"

	"github.com/notewell/notewell/llm"
)

// ConversationStorage defines the interface for storing conversation history.
// Implementations can use different backends (memory, database).
type ConversationStorage interface {
	// Save saves conversation history for a session.
	Save(ctx context.Context, sessionID string, history []llm.ChatMessage) error

	// Load loads conversation history for a session.
	// Returns empty slice (not nil) if session doesn't exist.
	// Returns error only for storage failures (I/O errors, etc.), not missing sessions.
	Load(ctx context.Context, sessionID string) ([]llm.ChatMessage, error)

	// Delete deletes conversation history for a session.
	Delete(ctx context.Context, sessionID string) error

	// ListSessions lists all session IDs.
	ListSessions(ctx context.Context) ([]string, error)

	// Exists checks if a session exists.
	Exists(ctx context.Context, sessionID string) (bool, error)
}
