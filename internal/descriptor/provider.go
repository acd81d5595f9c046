package descriptor

import (
	"context"
	"fmt"

	"github.com/kozaktomas/fieldprep/internal/config"
)

// Provider computes a fixed-length feature vector for an image. The dedup
// engine only needs the vectors of two near-duplicates to be close under
// cosine similarity; how the vector is produced is up to the provider.
type Provider interface {
	Name() string
	Vector(ctx context.Context, imageData []byte) ([]float32, error)
}

// New creates the provider selected by configuration. The local DCT
// descriptor is the default and needs no external services.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.Descriptor.Provider {
	case "", "local":
		return NewLocalProvider(), nil
	case "clip":
		return NewClipProvider(cfg.Descriptor.URL), nil
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, fmt.Errorf("OPENAI_TOKEN environment variable is required for the openai descriptor")
		}
		return NewOpenAIProvider(cfg.OpenAI.Token), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required for the gemini descriptor")
		}
		return NewGeminiProvider(ctx, cfg.Gemini.APIKey)
	default:
		return nil, fmt.Errorf("unknown descriptor provider: %s (supported: local, clip, openai, gemini)", cfg.Descriptor.Provider)
	}
}
