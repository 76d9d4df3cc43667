package chat

import "errors"

// ErrorMarker replaces the reply of a turn that failed. It is shown to the
// user and never persisted.
const ErrorMarker = "*(Connection interrupted or failed. Check the API key configuration or your network.)*"

// Sentinel errors for conversation operations.
var (
	ErrUnknownCharacter    = errors.New("chat: unknown character")
	ErrEmptyMessage        = errors.New("chat: message is empty")
	ErrBusy                = errors.New("chat: a reply is already in progress")
	ErrMessageNotFound     = errors.New("chat: message not found")
	ErrNothingToRegenerate = errors.New("chat: nothing to regenerate")
	ErrNotEnoughTurns      = errors.New("chat: not enough turns to summarize")
	ErrNoProvider          = errors.New("chat: no provider configured")

	// ErrAbandoned is returned when a turn was superseded by a clear, edit,
	// regenerate or settings change before it completed. Nothing is stored.
	ErrAbandoned = errors.New("chat: turn abandoned")
)
