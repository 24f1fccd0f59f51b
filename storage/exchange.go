// Exchange persistence for the agent loop.
//
// Information Hiding:
// - Exchange identity generation (UUIDs) hidden from callers
// - Backend choice hidden behind ExchangeStorage
// - Session binding hidden behind ExchangeRecorder

package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Exchange is one completed question/answer round of the agent loop.
// The answer is stored after citation normalization, so replays render
// the same text the user saw.
type Exchange struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Input     string `json:"input"`
	Output    string `json:"output"`
	CreatedAt int64  `json:"created_at"` // unix seconds
}

// NewExchange creates an exchange with a fresh ID and timestamp.
func NewExchange(sessionID, input, output string) Exchange {
	now := time.Now().Unix()
	return Exchange{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Input:     input,
		Output:    output,
		CreatedAt: now,
	}
}

// ExchangeStorage defines the interface for persisting completed exchanges.
type ExchangeStorage interface {
	// StoreExchange persists a single exchange.
	StoreExchange(ctx context.Context, exchange Exchange) error

	// ListExchanges returns the most recent exchanges for a session,
	// newest first. Returns empty slice (not nil) for unknown sessions.
	ListExchanges(ctx context.Context, sessionID string, limit int) ([]Exchange, error)

	// DeleteSessionExchanges removes all exchanges for a session.
	DeleteSessionExchanges(ctx context.Context, sessionID string) error
}

// ExchangeRecorder binds an ExchangeStorage to a session so the agent
// can persist exchanges without knowing about sessions or IDs.
type ExchangeRecorder struct {
	storage   ExchangeStorage
	sessionID string
}

// NewExchangeRecorder creates a recorder writing into the given session.
func NewExchangeRecorder(storage ExchangeStorage, sessionID string) *ExchangeRecorder {
	return &ExchangeRecorder{storage: storage, sessionID: sessionID}
}

// SaveExchange stores one question/answer pair in the bound session.
func (r *ExchangeRecorder) SaveExchange(ctx context.Context, input, output string) error {
	return r.storage.StoreExchange(ctx, NewExchange(r.sessionID, input, output))
}
