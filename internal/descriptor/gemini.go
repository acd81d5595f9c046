package descriptor

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const (
	geminiCaptionModel   = "gemini-2.5-flash"
	geminiEmbeddingModel = "gemini-embedding-001"
)

// GeminiProvider mirrors OpenAIProvider using the Gemini API: vision caption
// followed by a text embedding of the caption.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Vector(ctx context.Context, imageData []byte) ([]float32, error) {
	resizedData, err := resizeJPEG(imageData, 800)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: captionPrompt},
				{InlineData: &genai.Blob{Data: resizedData, MIMEType: "image/jpeg"}},
			},
		},
	}

	result, err := p.client.Models.GenerateContent(ctx, geminiCaptionModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	caption := result.Text()
	if caption == "" {
		return nil, errors.New("no response from Gemini")
	}

	embResp, err := p.client.Models.EmbedContent(ctx, geminiEmbeddingModel,
		genai.Text(caption), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding error: %w", err)
	}
	if len(embResp.Embeddings) == 0 || len(embResp.Embeddings[0].Values) == 0 {
		return nil, errors.New("empty embedding returned")
	}

	return embResp.Embeddings[0].Values, nil
}
