package visuals

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"ad-video-pipeline/config"
	"ad-video-pipeline/media"
	"ad-video-pipeline/observe"
	"ad-video-pipeline/types"
)

const (
	firstFramePrefix  = "High quality commercial photography, cinematic lighting, 4K resolution."
	lastFramePrefix   = "Professional product photography, studio lighting, clean background, 4K."
	middleFramePrefix = "High quality commercial photography, consistent style, cinematic lighting. Same person as reference image."
)

// ImageGenerator produces one keyframe image per scene
type ImageGenerator struct {
	cfg     *config.Config
	ark     *ArkClient
	dir     string
	metrics *observe.Metrics
}

// NewImageGenerator writes images into dir
func NewImageGenerator(cfg *config.Config, ark *ArkClient, dir string, metrics *observe.Metrics) *ImageGenerator {
	return &ImageGenerator{cfg: cfg, ark: ark, dir: dir, metrics: metrics}
}

// Run generates images in scene order. Scene 1's image, once it is real
// media, anchors scenes 2..N-1; the last scene is a standalone product shot.
// Every scene yields exactly one outcome.
func (g *ImageGenerator) Run(ctx context.Context, scenes []types.Scene) []media.Outcome {
	gen := g.cfg.Generation
	log.Printf("[images] Generating %d images with %s...", len(scenes), gen.ImageModel)

	outcomes := make([]media.Outcome, 0, len(scenes))
	reference := ""
	for i, scene := range scenes {
		prompt := ImagePrompt(i, len(scenes), scene.VisualDescription)
		useRef := i > 0 && i < len(scenes)-1 && reference != ""
		log.Printf("[images] Scene %d/%d: %s", scene.SceneNumber, len(scenes), truncate(prompt, 80))

		out := g.generate(ctx, scene.SceneNumber, prompt, reference, useRef)
		if useRef && !out.Degraded() {
			out.Asset.ReferenceOf = scenes[0].SceneNumber
		}
		if out.Degraded() {
			log.Printf("[images] ⚠️  Scene %d: %v — placeholder written", scene.SceneNumber, out.Err)
			g.metrics.RecordCall(ctx, "image", "failed")
		} else {
			log.Printf("[images] ✅ Scene %d saved: %s", scene.SceneNumber, filepath.Base(out.Asset.Path))
			g.metrics.RecordCall(ctx, "image", "ok")
		}
		outcomes = append(outcomes, out)

		if i == 0 && !out.Degraded() && !media.IsPlaceholder(out.Asset.Path, gen.PlaceholderBytes) {
			reference = out.Asset.Path
			log.Printf("[images] Scene %d set as reference image", scene.SceneNumber)
		}

		if i < len(scenes)-1 {
			if err := pause(ctx, gen.ImageDelay); err != nil {
				break
			}
		}
	}

	// A cancelled context still owes every remaining scene an outcome.
	for _, scene := range scenes[len(outcomes):] {
		outcomes = append(outcomes, g.generateFailed(scene.SceneNumber, ctx.Err()))
	}
	return outcomes
}

func (g *ImageGenerator) generate(ctx context.Context, sceneNum int, prompt, reference string, useRef bool) media.Outcome {
	gen := g.cfg.Generation
	path := filepath.Join(g.dir, fmt.Sprintf("scene_%02d.png", sceneNum))
	stub := g.stub(sceneNum, prompt, useRef)

	return media.OrPlaceholder(stub, func() (string, error) {
		req := ImageRequest{
			Model:                     gen.ImageModel,
			Prompt:                    prompt,
			SequentialImageGeneration: "disabled",
			ResponseFormat:            "url",
			Size:                      gen.ImageSize,
			Watermark:                 false,
		}
		if useRef {
			ref, err := dataURL(reference)
			if err != nil {
				return "", fmt.Errorf("read reference image: %w", err)
			}
			req.Image = ref
		}
		url, err := g.ark.GenerateImage(ctx, req)
		if err != nil {
			return "", err
		}
		if err := g.ark.Download(ctx, url, path); err != nil {
			return "", err
		}
		return path, nil
	})
}

func (g *ImageGenerator) generateFailed(sceneNum int, cause error) media.Outcome {
	return media.OrPlaceholder(g.stub(sceneNum, "", false), func() (string, error) {
		return "", fmt.Errorf("not attempted: %w", cause)
	})
}

func (g *ImageGenerator) stub(sceneNum int, prompt string, useRef bool) media.Stub {
	gen := g.cfg.Generation
	return media.Stub{
		SceneNumber: sceneNum,
		Path:        filepath.Join(g.dir, fmt.Sprintf("scene_%02d.png", sceneNum)),
		NotePath:    filepath.Join(g.dir, fmt.Sprintf("scene_%02d_prompt.txt", sceneNum)),
		Label:       fmt.Sprintf("Placeholder for scene %d", sceneNum),
		Details: []string{
			fmt.Sprintf("Scene %d prompt:", sceneNum),
			"",
			prompt,
			"",
			"Model: " + gen.ImageModel,
			"Size: " + gen.ImageSize,
			fmt.Sprintf("Reference image: %t", useRef),
		},
	}
}

// ImagePrompt decorates a scene description by its position in the storyboard
func ImagePrompt(index, total int, description string) string {
	switch {
	case index == 0:
		return firstFramePrefix + " " + description
	case index == total-1:
		return lastFramePrefix + " " + description
	default:
		return middleFramePrefix + " " + description
	}
}
