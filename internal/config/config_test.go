package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("FIELDPREP_WORKERS")
	os.Unsetenv("FIELDPREP_JPEG_MIN_QUALITY")
	os.Unsetenv("FIELDPREP_JPEG_MAX_QUALITY")
	os.Unsetenv("FIELDPREP_FLOOR_RATIO")

	cfg := Load()

	if cfg.Workers <= 0 {
		t.Errorf("expected positive default worker count, got %d", cfg.Workers)
	}

	if cfg.Jpeg.MinQuality != 5 {
		t.Errorf("expected default min quality 5, got %d", cfg.Jpeg.MinQuality)
	}

	if cfg.Jpeg.MaxQuality != 95 {
		t.Errorf("expected default max quality 95, got %d", cfg.Jpeg.MaxQuality)
	}

	if cfg.Jpeg.FloorRatio != 0.05 {
		t.Errorf("expected default floor ratio 0.05, got %f", cfg.Jpeg.FloorRatio)
	}
}

func TestLoad_WorkersOverride(t *testing.T) {
	t.Setenv("FIELDPREP_WORKERS", "3")

	cfg := Load()

	if cfg.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Workers)
	}
}

func TestEnvInt_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"not a number", "banana"},
		{"zero", "0"},
		{"negative", "-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FIELDPREP_TEST_INT", tt.value)

			if got := envInt("FIELDPREP_TEST_INT", 7); got != 7 {
				t.Errorf("expected fallback 7, got %d", got)
			}
		})
	}
}

func TestEnvFloat_Range(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  float64
	}{
		{"valid", "0.5", 0.5},
		{"one is allowed", "1", 1},
		{"zero rejected", "0", 0.05},
		{"above one rejected", "1.5", 0.05},
		{"garbage rejected", "lots", 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FIELDPREP_TEST_FLOAT", tt.value)

			if got := envFloat("FIELDPREP_TEST_FLOAT", 0.05); got != tt.want {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestLoad_DescriptorProvider(t *testing.T) {
	t.Setenv("FIELDPREP_DESCRIPTOR", "clip")
	t.Setenv("FIELDPREP_EMBEDDING_URL", "http://embedder:8000")

	cfg := Load()

	if cfg.Descriptor.Provider != "clip" {
		t.Errorf("expected provider clip, got %q", cfg.Descriptor.Provider)
	}

	if cfg.Descriptor.URL != "http://embedder:8000" {
		t.Errorf("unexpected embedding URL %q", cfg.Descriptor.URL)
	}
}
