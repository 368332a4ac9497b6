package visuals

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"ad-video-pipeline/config"
	"ad-video-pipeline/media"
	"ad-video-pipeline/observe"
	"ad-video-pipeline/types"
)

// Edit instructions, applied to every scene after the reference
const (
	editMatchStyle     = "Match background style, lighting, and color tone of first frame"
	editMatchCharacter = "Ensure character appearance and clothing match reference image"
	editProductFocus   = "Clear product closeup, highlight brand logo, professional lighting"
)

// EditPlan is the set of corrections one scene image needs
type EditPlan struct {
	SceneNumber int
	Reference   bool
	Edits       []string
}

// Instruction joins the plan into one prompt for the edit model
func (p EditPlan) Instruction() string {
	return "Maintain consistent style, lighting, and color tone with reference image. " +
		strings.Join(p.Edits, " ") +
		" Ensure character appearance and clothing exactly match reference image."
}

// ImageEditor re-renders scene images against the first scene so character,
// wardrobe and grading stay consistent before animation.
type ImageEditor struct {
	cfg     *config.Config
	ark     *ArkClient
	metrics *observe.Metrics
}

func NewImageEditor(cfg *config.Config, ark *ArkClient, metrics *observe.Metrics) *ImageEditor {
	return &ImageEditor{cfg: cfg, ark: ark, metrics: metrics}
}

// Plan derives edit instructions from the storyboard. Scene 1 is the
// reference and is never edited.
func Plan(scenes []types.Scene, product string) []EditPlan {
	noun := product
	if fields := strings.Fields(product); len(fields) > 0 {
		noun = fields[len(fields)-1]
	}
	noun = strings.ToLower(noun)

	plans := make([]EditPlan, len(scenes))
	for i, scene := range scenes {
		plan := EditPlan{SceneNumber: scene.SceneNumber}
		if i == 0 {
			plan.Reference = true
			plans[i] = plan
			continue
		}
		desc := strings.ToLower(scene.VisualDescription)
		if noun != "" && (strings.Contains(desc, "wearing "+noun) || strings.Contains(desc, "with "+noun)) {
			plan.Edits = append(plan.Edits,
				fmt.Sprintf("Remove extra %s from table or other locations, keep only worn %s", noun, noun))
		}
		plan.Edits = append(plan.Edits, editMatchStyle, editMatchCharacter)
		if i == len(scenes)-1 {
			plan.Edits = append(plan.Edits, editProductFocus)
		}
		plans[i] = plan
	}
	return plans
}

// Run edits images in scene order and returns one outcome per scene. Edited
// images are new files (scene_NN_edited.png). Placeholders pass through, and
// a failed edit keeps the original image.
func (e *ImageEditor) Run(ctx context.Context, images []types.Asset, scenes []types.Scene) ([]media.Outcome, error) {
	if err := types.CheckAligned(scenes, images); err != nil {
		return nil, fmt.Errorf("image edit: %w", err)
	}
	threshold := e.cfg.Generation.PlaceholderBytes
	plans := Plan(scenes, e.cfg.Storyboard.Product)
	log.Printf("[edit] Checking %d images for consistency...", len(images))

	reference := ""
	outcomes := make([]media.Outcome, len(images))
	for i, plan := range plans {
		img := images[i]
		outcomes[i] = media.Outcome{Asset: img}

		if plan.Reference {
			if !img.IsPlaceholder && !media.IsPlaceholder(img.Path, threshold) {
				reference = img.Path
			}
			log.Printf("[edit] Scene %d: reference image", plan.SceneNumber)
			continue
		}
		if img.IsPlaceholder || media.IsPlaceholder(img.Path, threshold) {
			log.Printf("[edit] Scene %d: skipping placeholder image", plan.SceneNumber)
			continue
		}

		log.Printf("[edit] Scene %d: %d edits", plan.SceneNumber, len(plan.Edits))
		edited, err := e.edit(ctx, img.Path, reference, plan.Instruction())
		if err != nil {
			e.metrics.RecordCall(ctx, "edit", "failed")
			log.Printf("[edit] ⚠️  Scene %d: %v, keeping original", plan.SceneNumber, err)
			outcomes[i].Err = err
		} else {
			e.metrics.RecordCall(ctx, "edit", "ok")
			log.Printf("[edit] ✅ Scene %d edited: %s", plan.SceneNumber, filepath.Base(edited))
			outcomes[i].Asset = types.Asset{SceneNumber: img.SceneNumber, Path: edited, ReferenceOf: scenes[0].SceneNumber}
		}

		if i < len(plans)-1 {
			if err := pause(ctx, e.cfg.ImageEdit.Delay); err != nil {
				for j := i + 1; j < len(plans); j++ {
					outcomes[j] = media.Outcome{Asset: images[j], Err: fmt.Errorf("edit not attempted: %w", err)}
				}
				log.Printf("[edit] ⚠️  Cancelled, keeping %d original images", len(plans)-i-1)
				break
			}
		}
	}
	return outcomes, nil
}

func (e *ImageEditor) edit(ctx context.Context, path, reference, instruction string) (string, error) {
	image, err := dataURL(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	req := ImageRequest{
		Model:          e.cfg.ImageEdit.Model,
		Prompt:         instruction,
		Image:          image,
		Size:           e.cfg.Generation.ImageSize,
		ResponseFormat: "url",
	}
	if reference != "" {
		if ref, err := dataURL(reference); err == nil {
			req.ReferenceImage = ref
		} else {
			log.Printf("[edit]   could not load reference image: %v", err)
		}
	}

	url, err := e.ark.GenerateImage(ctx, req)
	if err != nil {
		return "", err
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + "_edited.png"
	if err := e.ark.Download(ctx, url, out); err != nil {
		return "", err
	}
	return out, nil
}
