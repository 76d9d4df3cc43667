// Package provider defines the contracts shared by the language-model
// backends and the selector that decides which wire protocol to speak.
//
// Concrete backends live in separate packages (modules/provider/native,
// modules/provider/compatible) and register themselves from init().
package provider

import "context"

// Backend is the strategy object selected once per configuration change.
// It encapsulates one wire protocol end to end.
type Backend interface {
	// Kind reports which protocol this backend speaks.
	Kind() Kind

	// StartConversation creates a fresh conversation seeded with the given
	// system instruction and history. For stateful providers this builds a
	// remote chat handle; for stateless ones it only prepares local state.
	StartConversation(ctx context.Context, seed Seed) (Conversation, error)

	// Complete issues a single-turn, non-streaming completion.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// ListModels enumerates the models the endpoint offers.
	ListModels(ctx context.Context) ([]Model, error)

	// GenerateImage produces one image for prompt, or ErrUnsupported.
	GenerateImage(ctx context.Context, prompt string) (Image, error)
}

// Conversation is a live, provider-specific conversation.
type Conversation interface {
	// Stream sends text as the next user turn and returns a channel of
	// reply fragments. The channel is finite and closed when the reply is
	// complete. Connection errors are returned directly. Mid-stream errors
	// are delivered via StreamChunk.Err, after which the channel closes.
	//
	// A stream cannot be restarted; a new call begins a new turn.
	Stream(ctx context.Context, text string) (<-chan StreamChunk, error)
}

// Completer is the subset of Backend needed for one-shot completions.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Interface guard.
var _ Completer = Backend(nil)
