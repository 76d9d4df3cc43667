package native

import (
	"context"
	"fmt"
	"strings"

	"github.com/flemzord/rolechat/internal/provider"
)

// modelFamilies are the name fragments of models worth offering.
var modelFamilies = []string{"gemini", "veo", "imagen"}

// ListModels returns the Gemini, Veo and Imagen models visible to the key,
// with the "models/" prefix removed.
func (b *Backend) ListModels(ctx context.Context) ([]provider.Model, error) {
	var models []provider.Model
	for m, err := range b.sdk.Models(ctx) {
		if err != nil {
			return nil, fmt.Errorf("native: listing models: %w", mapError(err))
		}
		if m == nil || !isOffered(m.Name) {
			continue
		}
		name := strings.TrimPrefix(m.Name, "models/")
		display := m.DisplayName
		if display == "" {
			display = name
		}
		models = append(models, provider.Model{Name: name, DisplayName: display})
	}
	return models, nil
}

func isOffered(name string) bool {
	for _, family := range modelFamilies {
		if strings.Contains(name, family) {
			return true
		}
	}
	return false
}
