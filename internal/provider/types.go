package provider

import (
	"encoding/base64"
	"time"
)

// Kind names one of the supported wire protocols.
type Kind string

// Supported provider kinds.
const (
	// KindNative is the stateful chat-session SDK path.
	KindNative Kind = "native"
	// KindCompatible is the OpenAI-compatible HTTP + SSE path.
	KindCompatible Kind = "compatible"
)

// TurnRole is the role of a seeded history turn.
type TurnRole string

// TurnRole constants. Backends translate them to their wire names.
const (
	TurnUser  TurnRole = "user"
	TurnModel TurnRole = "model"
)

// Turn is one role-tagged history entry handed to a backend.
type Turn struct {
	Role    TurnRole
	Content string
}

// Sampling holds generation parameters. Nil fields are left to the provider.
type Sampling struct {
	Temperature *float64
	TopP        *float64
	TopK        *float64
}

// Seed is everything a backend needs to start a conversation.
type Seed struct {
	Model             string
	SystemInstruction string
	History           []Turn
	Sampling          Sampling
}

// CompletionRequest is the input of a one-shot completion.
type CompletionRequest struct {
	// Model is the caller's current model. Backends with a fixed auxiliary
	// model may ignore it.
	Model       string
	Prompt      string
	Temperature *float64
}

// StreamChunk is one piece of a streaming reply.
type StreamChunk struct {
	Content string
	Err     error
}

// Model describes a model offered by an endpoint.
type Model struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Image is a generated image.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURL renders the image as a data: URL.
func (i Image) DataURL() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Config is the externally supplied provider configuration.
type Config struct {
	APIKey  string
	BaseURL string

	// Referer and Title are sent as informational headers by the
	// compatible backend.
	Referer string
	Title   string

	// Timeout bounds connection setup. Zero means the backend default.
	Timeout time.Duration
}

// Float returns a pointer to v. Handy for Sampling and CompletionRequest.
func Float(v float64) *float64 {
	return &v
}
