package config

import (
	"os"
	"runtime"
	"strconv"
)

type Config struct {
	Descriptor DescriptorConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	Database   DatabaseConfig
	Jpeg       JpegConfig
	Workers    int
}

// DescriptorConfig selects how image feature vectors are computed.
type DescriptorConfig struct {
	Provider string // local, clip, openai, gemini (defaults to local)
	URL      string // CLIP embedding server URL (defaults to http://localhost:8000)
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

// DatabaseConfig configures the optional shared descriptor cache.
// When URL is empty the cache is disabled and descriptors are recomputed per run.
type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// JpegConfig bounds the quality domain for the size-budget compressor.
type JpegConfig struct {
	MinQuality int     // lowest quality the bisection may reach (default 5)
	MaxQuality int     // highest quality probed (default 95)
	FloorRatio float64 // assumed smallest achievable size as a fraction of the original (default 0.05)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or out of range.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	workers := envInt("FIELDPREP_WORKERS", 0)
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Config{
		Descriptor: DescriptorConfig{
			Provider: os.Getenv("FIELDPREP_DESCRIPTOR"),
			URL:      os.Getenv("FIELDPREP_EMBEDDING_URL"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Jpeg: JpegConfig{
			MinQuality: envInt("FIELDPREP_JPEG_MIN_QUALITY", 5),
			MaxQuality: envInt("FIELDPREP_JPEG_MAX_QUALITY", 95),
			FloorRatio: envFloat("FIELDPREP_FLOOR_RATIO", 0.05),
		},
		Workers: workers,
	}
}
