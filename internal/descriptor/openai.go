package descriptor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openaiCaptionModel   = openai.ChatModelGPT4_1Mini
	openaiEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small
)

const captionPrompt = `Describe this field photograph in two or three factual sentences.
Mention the main subject, terrain, vegetation, structures and lighting.
Do not speculate about location names.`

// OpenAIProvider derives a feature vector from a vision caption: the image
// is described by a vision model and the caption is embedded. Two shots of
// the same subject produce near-identical captions, so their embeddings sit
// close under cosine similarity.
type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Vector(ctx context.Context, imageData []byte) ([]float32, error) {
	// Resize image to max 800px to save costs.
	resizedData, err := resizeJPEG(imageData, 800)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resizedData)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openaiCaptionModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							openai.TextContentPart(captionPrompt),
							openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
								URL:    imageURL,
								Detail: "low",
							}),
						},
					},
				},
			},
		},
		MaxTokens: openai.Int(200),
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	caption := resp.Choices[0].Message.Content
	if caption == "" {
		return nil, errors.New("empty caption from OpenAI")
	}

	embResp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openaiEmbeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(caption),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embedding error: %w", err)
	}
	if len(embResp.Data) == 0 || len(embResp.Data[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}

	vec := make([]float32, len(embResp.Data[0].Embedding))
	for i, v := range embResp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
