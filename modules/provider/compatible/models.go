package compatible

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flemzord/rolechat/internal/provider"
)

// apiModelList is the response of GET /models.
type apiModelList struct {
	Data []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

// ListModels returns every model the endpoint advertises. A model without
// a display name is labelled with its ID.
func (b *Backend) ListModels(ctx context.Context) ([]provider.Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.config.BaseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("compatible: creating request: %w", err)
	}
	resp, err := b.do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, resp.Body)
	}

	var list apiModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("compatible: decoding models: %w: %w", err, provider.ErrTransport)
	}

	models := make([]provider.Model, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID == "" {
			continue
		}
		display := m.Name
		if display == "" {
			display = m.ID
		}
		models = append(models, provider.Model{Name: m.ID, DisplayName: display})
	}
	return models, nil
}
