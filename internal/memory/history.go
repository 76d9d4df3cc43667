// Package memory provides conversation history storage with an in-memory
// implementation. Persistent stores live under modules/memory.
package memory

import (
	"context"

	"github.com/flemzord/rolechat/pkg/message"
)

// HistoryStore persists the full message list of each conversation, keyed
// by character ID. Implementations must be safe for concurrent use and must
// return messages in stored order.
type HistoryStore interface {
	// Load returns every message of the conversation. An unknown
	// conversation yields an empty slice.
	Load(ctx context.Context, conversationID string) ([]message.Message, error)

	// Append adds messages to the end of the conversation.
	Append(ctx context.Context, conversationID string, msgs ...message.Message) error

	// Replace atomically substitutes the whole conversation.
	Replace(ctx context.Context, conversationID string, msgs []message.Message) error

	// Len returns the number of stored messages.
	Len(ctx context.Context, conversationID string) (int, error)
}
