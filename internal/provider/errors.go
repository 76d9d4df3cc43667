package provider

import "errors"

// Sentinel errors for provider operations.
var (
	// ErrConfig indicates malformed credentials or endpoint configuration.
	// Callers should re-prompt for configuration.
	ErrConfig = errors.New("provider misconfigured")

	// ErrSessionInit indicates a conversation could not be constructed.
	// It is not fatal: callers retry lazily on the next send.
	ErrSessionInit = errors.New("session initialization failed")

	// ErrNotInitialized indicates a send was attempted without a ready session.
	ErrNotInitialized = errors.New("chat session not initialized")

	// ErrTransport indicates a non-2xx response or a failure while streaming.
	ErrTransport = errors.New("provider transport error")

	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrProviderDown indicates the provider is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrUnsupported indicates the backend does not offer the operation.
	ErrUnsupported = errors.New("operation not supported by provider")
)

// IsRetryable reports whether the error is transient and the request
// can be retried after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
