package compatible

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/flemzord/rolechat/internal/provider"
)

// apiError represents an error response from an OpenAI-compatible API.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Code    any    `json:"code"` // Can be string or int depending on upstream.
}

// mapHTTPError converts a non-2xx status and response body into a
// provider error. Every result wraps provider.ErrTransport.
func mapHTTPError(statusCode int, body io.Reader) error {
	var ae apiError

	data, readErr := io.ReadAll(io.LimitReader(body, 4096))
	if readErr == nil && len(data) > 0 {
		_ = json.Unmarshal(data, &ae)
	}

	msg := ae.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", statusCode)
	}

	switch {
	case statusCode == 429:
		return fmt.Errorf("compatible: API error %d: %s: %w: %w", statusCode, msg, provider.ErrTransport, provider.ErrRateLimit)
	case statusCode == 401 || statusCode == 403:
		return fmt.Errorf("compatible: API error %d: %s: %w: %w", statusCode, msg, provider.ErrTransport, provider.ErrConfig)
	case statusCode >= 500:
		return fmt.Errorf("compatible: API error %d: %s: %w: %w", statusCode, msg, provider.ErrTransport, provider.ErrProviderDown)
	default:
		return fmt.Errorf("compatible: API error %d: %s: %w", statusCode, msg, provider.ErrTransport)
	}
}

// mapAPIError converts an in-body API error into a provider error.
func mapAPIError(body apiErrorBody) error {
	msg := body.Message
	if msg == "" {
		msg = "unknown error"
	}

	if strings.Contains(strings.ToLower(msg), "rate limit") {
		return fmt.Errorf("compatible: %s: %w: %w", msg, provider.ErrTransport, provider.ErrRateLimit)
	}
	return fmt.Errorf("compatible: %s: %w: %w", msg, provider.ErrTransport, provider.ErrProviderDown)
}
