// Package consistency grades independently generated clips toward the first
// scene and smooths the cuts between them.
package consistency

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"ad-video-pipeline/config"
	"ad-video-pipeline/media"
	"ad-video-pipeline/types"
)

// Operation names recorded in Result.Applied
const (
	OpNormalize  = "normalize"
	OpColorMatch = "color_match"
	OpFadeOut    = "fade_out"
	OpCopy       = "copy"
)

// Result is the output of one consistency pass
type Result struct {
	Clips []media.Outcome

	// Applied lists, per scene number, the operations that succeeded, in
	// the order they ran.
	Applied map[int][]string
}

// Processor runs the grading and transition pass
type Processor struct {
	cfg *config.Config
	ff  *media.FFmpeg
	dir string
}

// New writes intermediate and final clips into dir
func New(cfg *config.Config, ff *media.FFmpeg, dir string) *Processor {
	return &Processor{cfg: cfg, ff: ff, dir: dir}
}

// Run grades every real clip and smooths transitions, in scene order. A
// failed step keeps that clip's previous version. Placeholders pass through
// untouched.
func (p *Processor) Run(ctx context.Context, clips []types.Asset, scenes []types.Scene) (Result, error) {
	if err := types.CheckAligned(scenes, clips); err != nil {
		return Result{}, fmt.Errorf("consistency: %w", err)
	}
	res := Result{Clips: make([]media.Outcome, len(clips)), Applied: make(map[int][]string, len(clips))}
	for i, c := range clips {
		res.Clips[i] = media.Outcome{Asset: c}
	}
	if !p.cfg.Consistency.Enabled {
		log.Println("[consistency] Disabled, passing clips through")
		return res, nil
	}
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return Result{}, fmt.Errorf("consistency: %w", err)
	}
	threshold := p.cfg.Generation.PlaceholderBytes

	log.Printf("[consistency] Grading %d clips against scene %d...", len(clips), scenes[0].SceneNumber)
	for i := range clips {
		num := clips[i].SceneNumber
		if clips[i].IsPlaceholder || media.IsPlaceholder(clips[i].Path, threshold) {
			log.Printf("[consistency] Scene %d: placeholder, skipped", num)
			continue
		}

		p.step(ctx, &res, i, OpNormalize, fmt.Sprintf("normalized_%02d.mp4", num),
			"-vf", p.cfg.Consistency.NormalizeFilter, "-c:a", "copy")
		if i > 0 {
			p.step(ctx, &res, i, OpColorMatch, fmt.Sprintf("matched_%02d.mp4", num),
				"-vf", p.cfg.Consistency.ColorMatchFilter, "-c:a", "copy")
		}
	}

	log.Println("[consistency] Smoothing transitions...")
	last := len(clips) - 1
	for i := range clips {
		num := clips[i].SceneNumber
		if clips[i].IsPlaceholder || media.IsPlaceholder(clips[i].Path, threshold) {
			continue
		}
		out := fmt.Sprintf("smoothed_%02d.mp4", num)
		if i == last {
			p.step(ctx, &res, i, OpCopy, out, "-c", "copy")
			continue
		}
		start := FadeStart(scenes[i].Duration, p.cfg)
		fade := fmt.Sprintf("fade=t=out:st=%s:d=%s", media.Seconds(start), media.Seconds(p.cfg.Consistency.FadeSec))
		p.step(ctx, &res, i, OpFadeOut, out, "-vf", fade, "-c:a", "copy")
	}

	log.Printf("[consistency] ✅ %d clips processed", len(clips))
	return res, nil
}

// step runs one transform on clip i's current version. On success the
// output becomes the current version; on failure the clip keeps its input
// and the error is remembered.
func (p *Processor) step(ctx context.Context, res *Result, i int, op, name string, args ...string) {
	cur := res.Clips[i].Asset
	out := filepath.Join(p.dir, name)
	full := append([]string{"-i", cur.Path}, args...)
	if err := p.ff.Transform(ctx, out, full...); err != nil {
		log.Printf("[consistency] ⚠️  Scene %d %s failed, keeping previous version: %v", cur.SceneNumber, op, err)
		res.Clips[i].Err = errors.Join(res.Clips[i].Err, fmt.Errorf("%s: %w", op, err))
		return
	}
	res.Clips[i].Asset = types.Asset{SceneNumber: cur.SceneNumber, Path: out, ReferenceOf: cur.ReferenceOf}
	res.Applied[cur.SceneNumber] = append(res.Applied[cur.SceneNumber], op)
}

// FadeStart places the fade-out at the configured offset, pulled earlier
// when the clip is too short to hold the whole fade.
func FadeStart(sceneDuration float64, cfg *config.Config) float64 {
	clipLen := sceneDuration
	if limit := float64(cfg.Generation.MaxClipSec); limit > 0 {
		clipLen = math.Min(clipLen, limit)
	}
	start := math.Min(cfg.Consistency.FadeOffsetSec, clipLen-cfg.Consistency.FadeSec)
	return math.Max(0, start)
}
