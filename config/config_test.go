package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TEXT_API_KEY", "text-key")
	t.Setenv("ARK_API_KEY", "ark-key")
	t.Setenv("BRAND_NAME", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.Generation.PollInterval)
	}
	if cfg.Generation.PollAttempts != 60 {
		t.Errorf("PollAttempts = %d, want 60", cfg.Generation.PollAttempts)
	}
	if cfg.Generation.MaxClipSec != 10 {
		t.Errorf("MaxClipSec = %d, want 10", cfg.Generation.MaxClipSec)
	}
	if cfg.Credentials.TextAPIKey != "text-key" || cfg.Credentials.ArkAPIKey != "ark-key" {
		t.Errorf("credentials not read from env: %+v", cfg.Credentials)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	t.Setenv("BRAND_NAME", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
brand_name: ACME BUDS
generation:
  poll_interval: 250ms
  poll_attempts: 3
  image_delay: 0s
storyboard:
  worn_from_scene: 2
consistency:
  fade_offset_sec: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BrandName != "ACME BUDS" {
		t.Errorf("BrandName = %q", cfg.BrandName)
	}
	if cfg.Generation.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Generation.PollInterval)
	}
	if cfg.Generation.PollAttempts != 3 {
		t.Errorf("PollAttempts = %d", cfg.Generation.PollAttempts)
	}
	if cfg.Generation.ImageDelay != 0 {
		t.Errorf("ImageDelay = %v, want 0", cfg.Generation.ImageDelay)
	}
	if cfg.Storyboard.WornFromScene != 2 {
		t.Errorf("WornFromScene = %d", cfg.Storyboard.WornFromScene)
	}
	if cfg.Consistency.FadeOffsetSec != 5 {
		t.Errorf("FadeOffsetSec = %v", cfg.Consistency.FadeOffsetSec)
	}
	// untouched sections keep their defaults
	if cfg.Audio.FallbackFadeOutAt != 58 {
		t.Errorf("FallbackFadeOutAt = %v, want 58", cfg.Audio.FallbackFadeOutAt)
	}
}

func TestLoad_BrandFromEnv(t *testing.T) {
	t.Setenv("BRAND_NAME", "ENV BRAND")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BrandName != "ENV BRAND" {
		t.Errorf("BrandName = %q, want ENV BRAND", cfg.BrandName)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("generation: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Generation.PollAttempts = 0
	cfg.BrandName = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"TEXT_API_KEY", "ARK_API_KEY", "brand_name", "poll_attempts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
