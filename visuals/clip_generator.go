package visuals

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"

	"ad-video-pipeline/config"
	"ad-video-pipeline/media"
	"ad-video-pipeline/observe"
	"ad-video-pipeline/types"
)

// errPlaceholderSource marks clips skipped because their image is a stand-in
var errPlaceholderSource = errors.New("source image is a placeholder")

// ClipGenerator animates each scene image into a short clip
type ClipGenerator struct {
	cfg     *config.Config
	ark     *ArkClient
	dir     string
	metrics *observe.Metrics
	poller  Poller
}

// NewClipGenerator writes clips into dir
func NewClipGenerator(cfg *config.Config, ark *ArkClient, dir string, metrics *observe.Metrics) *ClipGenerator {
	return &ClipGenerator{
		cfg:     cfg,
		ark:     ark,
		dir:     dir,
		metrics: metrics,
		poller: Poller{
			Interval:    cfg.Generation.PollInterval,
			MaxAttempts: cfg.Generation.PollAttempts,
		},
	}
}

// Run produces one clip per image, in scene order. Placeholder images yield
// placeholder clips without calling the service. The only error is a
// mismatch between images and scenes.
func (g *ClipGenerator) Run(ctx context.Context, images []types.Asset, scenes []types.Scene) ([]media.Outcome, error) {
	if err := types.CheckAligned(scenes, images); err != nil {
		return nil, fmt.Errorf("clips: %w", err)
	}
	gen := g.cfg.Generation
	log.Printf("[clips] Generating %d clips with %s...", len(scenes), gen.VideoModel)

	outcomes := make([]media.Outcome, len(scenes))
	for i, scene := range scenes {
		dur := ClipSeconds(scene.Duration, gen.MaxClipSec)
		prompt := MotionPrompt(scene.Action, dur, gen)
		stub := g.stub(scene.SceneNumber, images[i].Path, prompt, dur)
		log.Printf("[clips] Scene %d/%d: %ds, motion %q", scene.SceneNumber, len(scenes), dur, truncate(scene.Action, 60))

		if images[i].IsPlaceholder || media.IsPlaceholder(images[i].Path, gen.PlaceholderBytes) {
			outcomes[i] = media.OrPlaceholder(stub, func() (string, error) { return "", errPlaceholderSource })
			g.metrics.RecordCall(ctx, "video", "skipped")
			log.Printf("[clips] ⚠️  Scene %d: image is a placeholder, skipping generation", scene.SceneNumber)
			continue
		}

		outcomes[i] = media.OrPlaceholder(stub, func() (string, error) {
			return g.generate(ctx, scene.SceneNumber, images[i].Path, prompt)
		})
		if outcomes[i].Degraded() {
			g.metrics.RecordCall(ctx, "video", "failed")
			log.Printf("[clips] ⚠️  Scene %d: %v — placeholder written", scene.SceneNumber, outcomes[i].Err)
		} else {
			g.metrics.RecordCall(ctx, "video", "ok")
			log.Printf("[clips] ✅ Scene %d saved: %s", scene.SceneNumber, filepath.Base(outcomes[i].Asset.Path))
		}

		if i < len(scenes)-1 {
			if err := pause(ctx, gen.ClipDelay); err != nil {
				g.notAttempted(outcomes, images, scenes, i+1, err)
				break
			}
		}
	}
	return outcomes, nil
}

// notAttempted gives every scene from index `from` on a placeholder once the
// run has been cancelled.
func (g *ClipGenerator) notAttempted(outcomes []media.Outcome, images []types.Asset, scenes []types.Scene, from int, cause error) {
	gen := g.cfg.Generation
	for j := from; j < len(scenes); j++ {
		dur := ClipSeconds(scenes[j].Duration, gen.MaxClipSec)
		stub := g.stub(scenes[j].SceneNumber, images[j].Path, MotionPrompt(scenes[j].Action, dur, gen), dur)
		outcomes[j] = media.OrPlaceholder(stub, func() (string, error) {
			return "", fmt.Errorf("not attempted: %w", cause)
		})
	}
	log.Printf("[clips] ⚠️  Cancelled, %d scenes not attempted", len(scenes)-from)
}

func (g *ClipGenerator) generate(ctx context.Context, sceneNum int, imagePath, prompt string) (string, error) {
	image, err := dataURL(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	id, err := g.ark.CreateVideoTask(ctx, g.cfg.Generation.VideoModel, []TaskContent{
		{Type: "image_url", ImageURL: &ImageURL{URL: image}, Role: "first_frame"},
		{Type: "text", Text: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	log.Printf("[clips]   task %s submitted, polling every %s", id, g.poller.Interval)

	task, state, err := g.poller.Poll(ctx, func(ctx context.Context) (Task, error) {
		return g.ark.GetVideoTask(ctx, id)
	})
	if err != nil {
		return "", err
	}
	log.Printf("[clips]   task %s %s after %d polls", id, state.LastStatus, state.Attempt)

	path := filepath.Join(g.dir, fmt.Sprintf("clip_%02d.mp4", sceneNum))
	if err := g.ark.Download(ctx, task.Content.VideoURL, path); err != nil {
		return "", err
	}
	return path, nil
}

func (g *ClipGenerator) stub(sceneNum int, imagePath, prompt string, dur int) media.Stub {
	return media.Stub{
		SceneNumber: sceneNum,
		Path:        filepath.Join(g.dir, fmt.Sprintf("clip_%02d.mp4", sceneNum)),
		NotePath:    filepath.Join(g.dir, fmt.Sprintf("clip_%02d_motion.txt", sceneNum)),
		Label:       fmt.Sprintf("Placeholder for video clip %d", sceneNum),
		Details: []string{
			fmt.Sprintf("Scene %d video parameters:", sceneNum),
			"",
			"Image: " + imagePath,
			"Motion prompt: " + prompt,
			fmt.Sprintf("Duration: %ds", dur),
			"Model: " + g.cfg.Generation.VideoModel,
		},
	}
}

// ClipSeconds is the requested clip length: the scene duration rounded to
// whole seconds and capped at limit. Longer scenes are truncated here.
func ClipSeconds(duration float64, limit int) int {
	d := int(math.Round(duration))
	if d < 1 {
		d = 1
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

// MotionPrompt appends the generation flags the video model reads from text
func MotionPrompt(action string, dur int, gen config.GenerationConfig) string {
	return fmt.Sprintf("%s --duration %d --ratio %s --resolution %s --fps %d --watermark false",
		action, dur, gen.VideoRatio, gen.VideoResolution, gen.VideoFPS)
}
