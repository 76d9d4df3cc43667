package memory

import (
	"context"
	"sync"

	"github.com/flemzord/rolechat/pkg/message"
)

// InMemoryHistoryStore is a thread-safe, in-memory implementation of HistoryStore.
type InMemoryHistoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]message.Message
}

// NewInMemoryHistoryStore creates a new empty history store.
func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{
		conversations: make(map[string][]message.Message),
	}
}

// Compile-time interface check.
var _ HistoryStore = (*InMemoryHistoryStore)(nil)

// Load returns a copy of the conversation's messages.
func (s *InMemoryHistoryStore) Load(_ context.Context, conversationID string) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return message.Clone(s.conversations[conversationID]), nil
}

// Append adds messages to the end of the conversation.
func (s *InMemoryHistoryStore) Append(_ context.Context, conversationID string, msgs ...message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = append(s.conversations[conversationID], msgs...)
	return nil
}

// Replace substitutes the whole conversation with a copy of msgs.
func (s *InMemoryHistoryStore) Replace(_ context.Context, conversationID string, msgs []message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(msgs) == 0 {
		delete(s.conversations, conversationID)
		return nil
	}
	s.conversations[conversationID] = message.Clone(msgs)
	return nil
}

// Len returns the number of stored messages.
func (s *InMemoryHistoryStore) Len(_ context.Context, conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations[conversationID]), nil
}
