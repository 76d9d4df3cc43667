package native

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/flemzord/rolechat/internal/provider"
)

// mapError classifies an SDK error. Every result wraps provider.ErrTransport.
func mapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", err, provider.ErrTransport)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %w", err, provider.ErrTransport, provider.ErrRateLimit)
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %w: %w", err, provider.ErrTransport, provider.ErrConfig)
	case apiErr.Code >= 500:
		return fmt.Errorf("%w: %w: %w", err, provider.ErrTransport, provider.ErrProviderDown)
	default:
		return fmt.Errorf("%w: %w", err, provider.ErrTransport)
	}
}
