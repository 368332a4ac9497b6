package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BrandName   string            `yaml:"brand_name"`
	StoryPath   string            `yaml:"story_path"`
	Storyboard  StoryboardConfig  `yaml:"storyboard"`
	Generation  GenerationConfig  `yaml:"generation"`
	ImageEdit   ImageEditConfig   `yaml:"image_edit"`
	Consistency ConsistencyConfig `yaml:"consistency"`
	Audio       AudioConfig       `yaml:"audio"`
	Render      RenderConfig      `yaml:"render"`
	Upload      UploadConfig      `yaml:"upload"`
	Paths       PathsConfig       `yaml:"paths"`
	Credentials Credentials       `yaml:"-"`
}

// StoryboardConfig drives the text model and the narrative policy embedded in
// the storyboard prompt.
type StoryboardConfig struct {
	BaseURL            string  `yaml:"base_url"`
	Model              string  `yaml:"model"`
	Temperature        float64 `yaml:"temperature"`
	MaxTokens          int     `yaml:"max_tokens"`
	MinScenes          int     `yaml:"min_scenes"`
	MaxScenes          int     `yaml:"max_scenes"`
	MinSceneSec        int     `yaml:"min_scene_sec"`
	MaxSceneSec        int     `yaml:"max_scene_sec"`
	TargetDurationSec  int     `yaml:"target_duration_sec"`
	Product            string  `yaml:"product"`
	WornFromScene      int     `yaml:"worn_from_scene"`
	ProductScenes      int     `yaml:"product_scenes"`
	EnforceAudioPolicy bool    `yaml:"enforce_audio_policy"`
}

type GenerationConfig struct {
	BaseURL          string        `yaml:"base_url"`
	ImageModel       string        `yaml:"image_model"`
	VideoModel       string        `yaml:"video_model"`
	ImageSize        string        `yaml:"image_size"`
	MaxClipSec       int           `yaml:"max_clip_sec"`
	VideoRatio       string        `yaml:"video_ratio"`
	VideoResolution  string        `yaml:"video_resolution"`
	VideoFPS         int           `yaml:"video_fps"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	PollAttempts     int           `yaml:"poll_attempts"`
	ImageDelay       time.Duration `yaml:"image_delay"`
	ClipDelay        time.Duration `yaml:"clip_delay"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	DownloadTimeout  time.Duration `yaml:"download_timeout"`
	PlaceholderBytes int64         `yaml:"placeholder_bytes"`
}

type ImageEditConfig struct {
	Enabled bool          `yaml:"enabled"`
	Model   string        `yaml:"model"`
	Delay   time.Duration `yaml:"delay"`
}

type ConsistencyConfig struct {
	Enabled          bool    `yaml:"enabled"`
	NormalizeFilter  string  `yaml:"normalize_filter"`
	ColorMatchFilter string  `yaml:"color_match_filter"`
	FadeSec          float64 `yaml:"fade_sec"`
	FadeOffsetSec    float64 `yaml:"fade_offset_sec"`
}

type AudioConfig struct {
	SampleRate        int     `yaml:"sample_rate"`
	FadeInSec         float64 `yaml:"fade_in_sec"`
	FadeOutSec        float64 `yaml:"fade_out_sec"`
	FallbackFadeOutAt float64 `yaml:"fallback_fade_out_at"`
	OutputFormat      string  `yaml:"output_format"`
}

type RenderConfig struct {
	FPS             int     `yaml:"fps"`
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	VideoProfile    string  `yaml:"video_profile"`
	VideoLevel      string  `yaml:"video_level"`
	PixelFormat     string  `yaml:"pixel_format"`
	CRF             int     `yaml:"crf"`
	Preset          string  `yaml:"preset"`
	AudioBitrate    string  `yaml:"audio_bitrate"`
	AudioSampleRate int     `yaml:"audio_sample_rate"`
	TextFontSize    int     `yaml:"text_font_size"`
	TextWindowSec   float64 `yaml:"text_window_sec"`
	TextFallbackAt  float64 `yaml:"text_fallback_at"`
	TextFontFile    string  `yaml:"text_font_file"`
}

type UploadConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility"`
	CategoryID        string `yaml:"category_id"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	DefaultLanguage   string `yaml:"default_language"`
}

type PathsConfig struct {
	Output string `yaml:"output"`
	Logs   string `yaml:"logs"`
}

// Credentials come from the environment, never from config.yaml
type Credentials struct {
	TextAPIKey string
	ArkAPIKey  string
}

// Default returns the configuration the pipeline runs with when config.yaml
// leaves a value unset.
func Default() *Config {
	return &Config{
		BrandName: "HAHA HEADPHONE",
		StoryPath: "story.txt",
		Storyboard: StoryboardConfig{
			Model:             "gpt-4o",
			Temperature:       0.7,
			MaxTokens:         4000,
			MinScenes:         6,
			MaxScenes:         8,
			MinSceneSec:       8,
			MaxSceneSec:       10,
			TargetDurationSec: 60,
			Product:           "wireless headphones",
			WornFromScene:     3,
			ProductScenes:     1,
		},
		Generation: GenerationConfig{
			BaseURL:          "https://ark.ap-southeast.bytepluses.com/api/v3",
			ImageModel:       "seedream-4-0-250828",
			VideoModel:       "seedance-1-0-lite-i2v-250428",
			ImageSize:        "1920x1080",
			MaxClipSec:       10,
			VideoRatio:       "16:9",
			VideoResolution:  "720p",
			VideoFPS:         24,
			PollInterval:     10 * time.Second,
			PollAttempts:     60,
			ImageDelay:       3 * time.Second,
			ClipDelay:        2 * time.Second,
			RequestTimeout:   120 * time.Second,
			DownloadTimeout:  120 * time.Second,
			PlaceholderBytes: 1000,
		},
		ImageEdit: ImageEditConfig{
			Model: "seededit-1-0-250828",
			Delay: 3 * time.Second,
		},
		Consistency: ConsistencyConfig{
			Enabled:         true,
			NormalizeFilter: "eq=brightness=0:contrast=1.1:saturation=1.0,curves=preset=lighter",
			ColorMatchFilter: "colorlevels=rimax=0.902:gimax=0.902:bimax=0.902," +
				"colorbalance=rs=0.1:gs=0:bs=-0.1:rm=0:gm=0:bm=0:rh=0:gh=0:bh=0," +
				"eq=contrast=1.05:brightness=0:saturation=1.0",
			FadeSec:       0.5,
			FadeOffsetSec: 7.5,
		},
		Audio: AudioConfig{
			SampleRate:        44100,
			FadeInSec:         1,
			FadeOutSec:        2,
			FallbackFadeOutAt: 58,
			OutputFormat:      "mp3",
		},
		Render: RenderConfig{
			FPS:             24,
			Width:           1280,
			Height:          720,
			VideoProfile:    "baseline",
			VideoLevel:      "3.0",
			PixelFormat:     "yuv420p",
			CRF:             23,
			Preset:          "medium",
			AudioBitrate:    "192k",
			AudioSampleRate: 48000,
			TextFontSize:    90,
			TextWindowSec:   5,
			TextFallbackAt:  50,
		},
		Upload: UploadConfig{
			Visibility:      "private",
			CategoryID:      "22",
			DefaultLanguage: "en",
		},
		Paths: PathsConfig{
			Output: "output",
			Logs:   "logs",
		},
	}
}

// Load reads config.yaml on top of Default and picks credentials from the
// environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.Credentials = Credentials{
		TextAPIKey: firstEnv("TEXT_API_KEY", "OPENAI_API_KEY", "GROQ_API_KEY"),
		ArkAPIKey:  firstEnv("ARK_API_KEY", "BYTEPLUS_API_KEY"),
	}
	if brand := os.Getenv("BRAND_NAME"); brand != "" {
		cfg.BrandName = brand
	}
	return cfg, nil
}

// Validate checks the values a run cannot start without
func (c *Config) Validate() error {
	var errs []error
	if c.Credentials.TextAPIKey == "" {
		errs = append(errs, errors.New("TEXT_API_KEY (or OPENAI_API_KEY) not set"))
	}
	if c.Credentials.ArkAPIKey == "" {
		errs = append(errs, errors.New("ARK_API_KEY not set"))
	}
	if c.BrandName == "" {
		errs = append(errs, errors.New("brand_name is empty"))
	}
	if c.Storyboard.MinScenes <= 0 || c.Storyboard.MaxScenes < c.Storyboard.MinScenes {
		errs = append(errs, fmt.Errorf("storyboard scene range %d-%d is invalid",
			c.Storyboard.MinScenes, c.Storyboard.MaxScenes))
	}
	if c.Generation.PollAttempts <= 0 {
		errs = append(errs, errors.New("generation.poll_attempts must be positive"))
	}
	if c.Generation.MaxClipSec <= 0 {
		errs = append(errs, errors.New("generation.max_clip_sec must be positive"))
	}
	return errors.Join(errs...)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
