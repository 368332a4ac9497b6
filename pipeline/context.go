// Package pipeline runs one advertisement end to end: storyboard, images,
// optional edits, clips, consistency, audio, composition and publish.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/metric"

	"ad-video-pipeline/config"
	"ad-video-pipeline/media"
	"ad-video-pipeline/observe"
	"ad-video-pipeline/storyboard"
	"ad-video-pipeline/upload"
	"ad-video-pipeline/visuals"
)

// Dirs is the per-run output layout
type Dirs struct {
	Run        string
	Storyboard string
	Images     string
	Clips      string
	ColorMatch string
	Audio      string
	Final      string
}

// NewDirs lays out the stage directories under root
func NewDirs(root string) Dirs {
	clips := filepath.Join(root, "03_video_clips")
	return Dirs{
		Run:        root,
		Storyboard: filepath.Join(root, "01_storyboard"),
		Images:     filepath.Join(root, "02_images"),
		Clips:      clips,
		ColorMatch: filepath.Join(clips, "color_match"),
		Audio:      filepath.Join(root, "audio"),
		Final:      filepath.Join(root, "04_final"),
	}
}

func (d Dirs) all() []string {
	return []string{d.Run, d.Storyboard, d.Images, d.Clips, d.ColorMatch, d.Audio, d.Final}
}

// Context is everything one run shares. It is built once and handed to each
// stage; stages only read from it.
type Context struct {
	Cfg      *config.Config
	RunID    string
	Dirs     Dirs
	FFmpeg   *media.FFmpeg
	Text     storyboard.TextGenerator
	Ark      *visuals.ArkClient
	Metrics  *observe.Metrics
	Uploader *upload.Uploader
}

// NewContext wires the clients for runID and creates its output directories
// under cfg.Paths.Output. A nil text generator uses the configured
// OpenAI-compatible endpoint; a nil mp records no metrics.
func NewContext(cfg *config.Config, runID string, runner media.Runner, text storyboard.TextGenerator, mp metric.MeterProvider) (*Context, error) {
	metrics := observe.Nop()
	if mp != nil {
		m, err := observe.NewMetrics(mp)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		metrics = m
	}
	if text == nil {
		text = storyboard.NewOpenAIGenerator(cfg.Storyboard, cfg.Credentials.TextAPIKey)
	}

	pc := &Context{
		Cfg:      cfg,
		RunID:    runID,
		Dirs:     NewDirs(filepath.Join(cfg.Paths.Output, runID)),
		FFmpeg:   media.NewFFmpeg(runner),
		Text:     text,
		Ark:      visuals.NewArkClient(cfg.Generation, cfg.Credentials.ArkAPIKey, mp),
		Metrics:  metrics,
		Uploader: upload.New(cfg),
	}
	for _, dir := range pc.Dirs.all() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return pc, nil
}
