package native

import (
	"context"
	"iter"

	"google.golang.org/genai"
)

// sdk is the subset of the Gemini client the backend calls.
type sdk interface {
	CreateChat(ctx context.Context, model string, cfg *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Models(ctx context.Context) iter.Seq2[*genai.Model, error]
}

// chatSession is a stateful SDK chat.
type chatSession interface {
	SendMessageStream(ctx context.Context, parts ...genai.Part) iter.Seq2[*genai.GenerateContentResponse, error]
}

// sdkClient adapts *genai.Client to sdk.
type sdkClient struct {
	client *genai.Client
}

func (s *sdkClient) CreateChat(ctx context.Context, model string, cfg *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	return s.client.Chats.Create(ctx, model, cfg, history)
}

func (s *sdkClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return s.client.Models.GenerateContent(ctx, model, contents, cfg)
}

func (s *sdkClient) Models(ctx context.Context) iter.Seq2[*genai.Model, error] {
	return s.client.Models.All(ctx)
}
