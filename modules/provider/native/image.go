package native

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/flemzord/rolechat/internal/provider"
)

const portraitPrompt = "A high quality, detailed anime style character portrait of: %s. Vertical aspect ratio, standing pose, white or simple background."

// GenerateImage renders a character portrait for the description in prompt
// and returns the first inline image of the response.
func (b *Backend) GenerateImage(ctx context.Context, prompt string) (provider.Image, error) {
	resp, err := b.sdk.GenerateContent(ctx, b.config.ImageModel, genai.Text(fmt.Sprintf(portraitPrompt, prompt)), nil)
	if err != nil {
		return provider.Image{}, fmt.Errorf("native: generating image: %w", mapError(err))
	}

	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			return provider.Image{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data}, nil
		}
	}
	return provider.Image{}, fmt.Errorf("native: no image data returned: %w", provider.ErrTransport)
}
