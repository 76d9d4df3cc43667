// Package message defines the conversation record shared between the chat
// front end, the message store, and the context engine.
package message

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	// RoleUser is the human side of the conversation.
	RoleUser Role = "user"
	// RoleModel is the character played by the language model.
	RoleModel Role = "model"
)

// Message is a single entry of a stored conversation.
//
// IsMemory marks a synthetic entry produced by history compaction. It holds a
// summary of earlier turns and is never produced by the remote model directly.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsMemory  bool      `json:"is_memory,omitempty"`
}

// NewUser creates a user message stamped with ts.
func NewUser(text string, ts time.Time) Message {
	return Message{ID: uuid.NewString(), Role: RoleUser, Text: text, Timestamp: ts}
}

// NewModel creates a model message stamped with ts.
func NewModel(text string, ts time.Time) Message {
	return Message{ID: uuid.NewString(), Role: RoleModel, Text: text, Timestamp: ts}
}

// NewMemory creates a memory entry holding a conversation summary.
func NewMemory(summary string, ts time.Time) Message {
	return Message{ID: uuid.NewString(), Role: RoleModel, Text: summary, Timestamp: ts, IsMemory: true}
}

// SplitMemories partitions msgs into memory entries and regular turns,
// preserving the relative order of each group.
func SplitMemories(msgs []Message) (memories, turns []Message) {
	for _, m := range msgs {
		if m.IsMemory {
			memories = append(memories, m)
		} else {
			turns = append(turns, m)
		}
	}
	return memories, turns
}

// Clone returns a copy of msgs that shares no backing array with the input.
func Clone(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	return slices.Clone(msgs)
}

// IndexOf returns the index of the message with the given ID, or -1.
func IndexOf(msgs []Message, id string) int {
	return slices.IndexFunc(msgs, func(m Message) bool { return m.ID == id })
}

// LastOfRole returns the most recent non-memory message with the given role.
func LastOfRole(msgs []Message, role Role) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role && !msgs[i].IsMemory {
			return msgs[i], true
		}
	}
	return Message{}, false
}
