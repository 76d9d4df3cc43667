package compatible

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flemzord/rolechat/internal/provider"
)

// apiRequest is the OpenAI-compatible chat completion request body.
type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stream      bool         `json:"stream"`
}

// apiMessage is an OpenAI-compatible chat message.
type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiResponse is the non-streaming OpenAI-compatible response.
type apiResponse struct {
	Choices []apiChoice   `json:"choices"`
	Error   *apiErrorBody `json:"error,omitempty"`
}

// apiChoice is a single choice in a completion response.
type apiChoice struct {
	Message apiMessage `json:"message"`
}

// apiStreamChunk is a single chunk in a streaming response.
type apiStreamChunk struct {
	Choices []apiStreamChoice `json:"choices"`
	Error   *apiErrorBody     `json:"error,omitempty"`
}

// apiStreamChoice is a choice within a streaming chunk.
type apiStreamChoice struct {
	Delta apiStreamDelta `json:"delta"`
}

// apiStreamDelta holds incremental content in a streaming chunk.
type apiStreamDelta struct {
	Content string `json:"content,omitempty"`
}

// Complete sends a single user turn without streaming and returns the reply
// text.
func (b *Backend) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	if req.Model == "" {
		return "", fmt.Errorf("compatible: model is required: %w", provider.ErrConfig)
	}
	apiReq := apiRequest{
		Model:       req.Model,
		Messages:    []apiMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}

	resp, err := b.post(ctx, "/chat/completions", apiReq)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", mapHTTPError(resp.StatusCode, resp.Body)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("compatible: decoding response: %w: %w", err, provider.ErrTransport)
	}
	if apiResp.Error != nil {
		return "", mapAPIError(*apiResp.Error)
	}
	if len(apiResp.Choices) == 0 {
		return "", nil
	}
	return apiResp.Choices[0].Message.Content, nil
}

// post sends a JSON body to path and returns the raw HTTP response.
func (b *Backend) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("compatible: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("compatible: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return b.do(httpReq)
}

// do sets the auth and attribution headers and sends req.
func (b *Backend) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+b.config.APIKey)
	if b.config.Referer != "" {
		req.Header.Set("HTTP-Referer", b.config.Referer)
	}
	if b.config.Title != "" {
		req.Header.Set("X-Title", b.config.Title)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("compatible: sending request: %w", ctxErr)
		}
		// Network failures are transient.
		return nil, fmt.Errorf("compatible: sending request: %w: %w", err, provider.ErrProviderDown)
	}
	return resp, nil
}
