package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrorsAreDistinct(t *testing.T) {
	t.Parallel()

	sentinels := []error{
		ErrConfig,
		ErrSessionInit,
		ErrNotInitialized,
		ErrTransport,
		ErrRateLimit,
		ErrProviderDown,
		ErrUnsupported,
	}

	for i, a := range sentinels {
		if a.Error() == "" {
			t.Fatalf("sentinel %d must have a message", i)
		}
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Fatalf("sentinel errors must be distinct: %v and %v", a, b)
			}
		}
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", ErrRateLimit, true},
		{"provider down", ErrProviderDown, true},
		{"wrapped rate limit", fmt.Errorf("compatible: slow down: %w", ErrRateLimit), true},
		{"transport", ErrTransport, false},
		{"config", ErrConfig, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
