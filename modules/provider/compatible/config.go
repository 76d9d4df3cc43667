package compatible

import "time"

const (
	defaultTitle   = "Rolechat"
	defaultTimeout = 120 * time.Second
)

// Config holds the settings of the compatible backend.
type Config struct {
	// APIKey is sent as a bearer token.
	APIKey string

	// BaseURL is the API root, e.g. https://openrouter.ai/api/v1.
	BaseURL string

	// Referer is sent as the HTTP-Referer header (optional).
	Referer string

	// Title is sent as the X-Title header.
	// Default: "Rolechat"
	Title string

	// Timeout bounds dialing, the TLS handshake and the wait for response
	// headers. It does not bound the streamed body.
	// Default: 120s
	Timeout time.Duration
}

// defaults fills in zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.Title == "" {
		c.Title = defaultTitle
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}
