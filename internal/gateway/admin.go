package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/flemzord/rolechat/internal/chat"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/security"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string        `json:"status"`
	Provider      provider.Kind `json:"provider,omitempty"`
	ProviderState string        `json:"provider_state"`
	Failures      int           `json:"consecutive_failures"`
	Conversations int           `json:"conversations"`
	Error         string        `json:"error,omitempty"`
}

// handleHealth reports 503 when no provider backend is configured or the
// provider has failed too many turns in a row, 200 otherwise.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := g.svc.Health()
	resp := HealthResponse{
		Status:        "ok",
		ProviderState: health.State.String(),
		Failures:      health.Failures,
		Conversations: g.svc.OpenConversations(),
	}
	status := http.StatusOK
	b, err := g.svc.Backend()
	switch {
	case err != nil:
		resp.Status = "degraded"
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	case health.State == provider.StateFailing:
		resp.Provider = b.Kind()
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	default:
		resp.Provider = b.Kind()
	}
	writeJSON(w, status, resp)
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Version       string        `json:"version"`
	Uptime        int64         `json:"uptime_seconds"`
	Provider      provider.Kind `json:"provider"`
	Conversations int           `json:"conversations"`
	Characters    int           `json:"characters"`
}

func (g *Gateway) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Version:       g.version,
		Uptime:        int64(time.Since(g.startedAt).Seconds()),
		Provider:      provider.Detect(g.svc.ProviderConfig().BaseURL),
		Conversations: g.svc.OpenConversations(),
		Characters:    len(g.svc.Characters()),
	})
}

// handleListModels returns the provider's models. ?refresh=true bypasses
// the cache.
func (g *Gateway) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := g.svc.RefreshModels(r.Context()); err != nil {
			g.writeErr(w, r, err)
			return
		}
	}
	models, err := g.svc.ListModels(r.Context())
	if err != nil {
		g.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

// ProviderResponse describes the active provider without its key.
type ProviderResponse struct {
	Kind    provider.Kind `json:"kind"`
	BaseURL string        `json:"base_url"`
	HasKey  bool          `json:"has_key"`
}

// ProviderRequest is the body of PUT /api/provider.
type ProviderRequest struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

func (g *Gateway) providerResponse() ProviderResponse {
	cfg := g.svc.ProviderConfig()
	return ProviderResponse{
		Kind:    provider.Detect(cfg.BaseURL),
		BaseURL: cfg.BaseURL,
		HasKey:  cfg.APIKey != "",
	}
}

func (g *Gateway) handleGetProvider(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.providerResponse())
}

// handlePutProvider switches credentials or endpoint. Every live session
// is reset and restarts on its next send.
func (g *Gateway) handlePutProvider(w http.ResponseWriter, r *http.Request) {
	var req ProviderRequest
	if err := decode(r, &req); err != nil {
		g.writeErr(w, r, err)
		return
	}
	cfg := g.svc.ProviderConfig()
	cfg.APIKey = strings.TrimSpace(req.APIKey)
	cfg.BaseURL = strings.TrimSpace(req.BaseURL)

	g.creds.Set(security.CredProviderKey, cfg.APIKey)
	err := g.svc.Reconfigure(r.Context(), cfg)

	detail := "applied"
	if err != nil {
		detail = err.Error()
	}
	g.audit.Log(security.AuditEvent{
		Type:     security.EventProviderChange,
		Remote:   r.RemoteAddr,
		Detail:   detail,
		Metadata: map[string]string{"kind": string(provider.Detect(cfg.BaseURL))},
	})
	if err != nil {
		g.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g.providerResponse())
}

// characterJSON omits the instruction, which may be long and is not needed
// by front ends.
type characterJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Greeting string `json:"greeting,omitempty"`
}

func toCharacterJSON(ch chat.Character) characterJSON {
	return characterJSON{ID: ch.ID, Name: ch.Name, Greeting: ch.Greeting}
}

func (g *Gateway) handleListCharacters(w http.ResponseWriter, _ *http.Request) {
	chars := g.svc.Characters()
	out := make([]characterJSON, 0, len(chars))
	for _, ch := range chars {
		out = append(out, toCharacterJSON(ch))
	}
	writeJSON(w, http.StatusOK, out)
}

// ImageRequest is the body of POST /api/images.
type ImageRequest struct {
	Prompt string `json:"prompt"`
}

// ImageResponse carries the generated image as a data URL.
type ImageResponse struct {
	MIMEType string `json:"mime_type"`
	DataURL  string `json:"data_url"`
}

func (g *Gateway) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if err := decode(r, &req); err != nil {
		g.writeErr(w, r, err)
		return
	}
	if err := security.ValidateMessage(req.Prompt, 0); err != nil {
		g.writeErr(w, r, err)
		return
	}
	img, err := g.svc.GenerateImage(r.Context(), req.Prompt)
	if err != nil {
		g.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ImageResponse{MIMEType: img.MIMEType, DataURL: img.DataURL()})
}
