package store

import (
	"log/slog"
	"sync"

	"github.com/auditlife/auditlife/internal/models"
)

// InMemoryStore keeps conversation state in a process-local map. State is
// volatile and lost on restart. A single RWMutex guards the map; entries for
// different conversation ids never corrupt each other and reads following a
// write on the same goroutine observe the new value.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]models.ConversationState
}

// NewInMemoryStore creates an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]models.ConversationState)}
}

// GetState retrieves the state for a conversation, defaulting to idle.
func (s *InMemoryStore) GetState(conversationID string) (models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[conversationID]
	if !ok {
		return models.Idle(), nil
	}
	return state, nil
}

// SetState overwrites the state entry for a conversation.
func (s *InMemoryStore) SetState(conversationID string, state models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[conversationID] = state
	slog.Debug("InMemoryStore SetState", "conversationID", conversationID, "state", state.State)
	return nil
}

// ClearState removes the state entry for a conversation. Clearing an absent
// entry is a no-op.
func (s *InMemoryStore) ClearState(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[conversationID]; ok {
		delete(s.states, conversationID)
		slog.Debug("InMemoryStore ClearState", "conversationID", conversationID)
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
