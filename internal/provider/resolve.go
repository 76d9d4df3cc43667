package provider

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// compatibleMarkers are the base URL fragments that identify an
// OpenAI-compatible endpoint.
var compatibleMarkers = []string{"openrouter", "v1"}

// Resolution is the outcome of resolving a Config.
type Resolution struct {
	Kind    Kind
	APIKey  string
	BaseURL string
}

// Detect classifies baseURL. An empty URL selects the native default endpoint.
func Detect(baseURL string) Kind {
	lower := strings.ToLower(baseURL)
	for _, marker := range compatibleMarkers {
		if strings.Contains(lower, marker) {
			return KindCompatible
		}
	}
	return KindNative
}

// Resolve derives the provider kind from cfg. It is a pure function of the
// configuration: no network call, no cached state.
func Resolve(cfg Config) Resolution {
	return Resolution{
		Kind:    Detect(cfg.BaseURL),
		APIKey:  cfg.APIKey,
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Options are handed to a BackendFactory.
type Options struct {
	Resolution Resolution
	Config     Config
	Logger     *slog.Logger
}

// BackendFactory constructs a Backend for one Kind.
type BackendFactory func(ctx context.Context, opts Options) (Backend, error)

var (
	factories   = make(map[Kind]BackendFactory)
	factoriesMu sync.RWMutex
)

// RegisterBackend registers the factory for kind. It panics on duplicates.
// Intended to be called from init() functions of backend packages.
func RegisterBackend(kind Kind, factory BackendFactory) {
	if kind == "" {
		panic("provider: backend kind must not be empty")
	}
	if factory == nil {
		panic(fmt.Sprintf("provider: factory for %s must not be nil", kind))
	}

	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("provider: backend already registered: %s", kind))
	}
	factories[kind] = factory
}

// RegisteredKinds returns the registered kinds in sorted order.
func RegisteredKinds() []Kind {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	kinds := make([]Kind, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	slices.SortFunc(kinds, func(a, b Kind) int { return cmp.Compare(a, b) })
	return kinds
}

// NewBackend resolves cfg and constructs the matching backend.
func NewBackend(ctx context.Context, cfg Config, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := Resolve(cfg)

	factoriesMu.RLock()
	factory, ok := factories[res.Kind]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider: no backend registered for %q: %w", res.Kind, ErrConfig)
	}

	b, err := factory(ctx, Options{Resolution: res, Config: cfg, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("provider: building %s backend: %w", res.Kind, err)
	}
	return b, nil
}
