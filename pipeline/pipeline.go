package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ad-video-pipeline/audio"
	"ad-video-pipeline/consistency"
	"ad-video-pipeline/media"
	"ad-video-pipeline/render"
	"ad-video-pipeline/storyboard"
	"ad-video-pipeline/types"
	"ad-video-pipeline/upload"
	"ad-video-pipeline/visuals"
)

// StateFile is written into the run directory when Run returns
const StateFile = "pipeline_state.json"

// Run executes every stage for narrative. The returned state is never nil
// and is saved to the run directory on every exit path. The error is set
// only for failures that leave no final video: an invalid storyboard,
// misaligned stage outputs, or a composition with nothing playable.
func Run(ctx context.Context, pc *Context, narrative string) (*types.RunState, error) {
	cfg := pc.Cfg
	state := &types.RunState{
		RunID:     pc.RunID,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Brand:     cfg.BrandName,
	}
	fail := func(stage string, err error) (*types.RunState, error) {
		err = fmt.Errorf("%s: %w", stage, err)
		state.Error = err.Error()
		return state, err
	}
	defer func() {
		state.CompletedAt = time.Now().UTC().Format(time.RFC3339)
		report(state)
		saveJSON(filepath.Join(pc.Dirs.Run, StateFile), state)
	}()

	// ─────────────────────────────────────────────
	// STAGE 1: Storyboard
	// ─────────────────────────────────────────────
	log.Println("━━━ STAGE 1: Storyboard ━━━")
	done := pc.Metrics.TimeStage(ctx, "storyboard")
	scenes, err := storyboard.New(cfg, pc.Text, pc.Dirs.Storyboard).Run(ctx, narrative)
	done()
	if err != nil {
		pc.Metrics.RecordCall(ctx, "text", "failed")
		return fail("Stage 1 Storyboard", err)
	}
	pc.Metrics.RecordCall(ctx, "text", "ok")
	state.Scenes = scenes

	// ─────────────────────────────────────────────
	// STAGE 2: Images
	// ─────────────────────────────────────────────
	log.Println("━━━ STAGE 2: Images ━━━")
	done = pc.Metrics.TimeStage(ctx, "images")
	outcomes := visuals.NewImageGenerator(cfg, pc.Ark, pc.Dirs.Images, pc.Metrics).Run(ctx, scenes)
	done()
	state.Images = media.Assets(outcomes)
	pc.degrade(ctx, state, "images", outcomes)
	clipSources := state.Images

	// ─────────────────────────────────────────────
	// STAGE 2b: Image Editing (optional)
	// ─────────────────────────────────────────────
	if cfg.ImageEdit.Enabled {
		log.Println("━━━ STAGE 2b: Image Editing ━━━")
		done = pc.Metrics.TimeStage(ctx, "image_edit")
		outcomes, err = visuals.NewImageEditor(cfg, pc.Ark, pc.Metrics).Run(ctx, state.Images, scenes)
		done()
		if err != nil {
			return fail("Stage 2b Image Editing", err)
		}
		state.EditedImages = media.Assets(outcomes)
		pc.degrade(ctx, state, "image_edit", outcomes)
		clipSources = state.EditedImages
	}

	// ─────────────────────────────────────────────
	// STAGE 3: Video Clips
	// ─────────────────────────────────────────────
	log.Println("━━━ STAGE 3: Video Clips ━━━")
	done = pc.Metrics.TimeStage(ctx, "clips")
	outcomes, err = visuals.NewClipGenerator(cfg, pc.Ark, pc.Dirs.Clips, pc.Metrics).Run(ctx, clipSources, scenes)
	done()
	if err != nil {
		return fail("Stage 3 Video Clips", err)
	}
	state.Clips = media.Assets(outcomes)
	pc.degrade(ctx, state, "clips", outcomes)

	// ─────────────────────────────────────────────
	// STAGE 4: Consistency
	// ─────────────────────────────────────────────
	log.Println("━━━ STAGE 4: Consistency ━━━")
	done = pc.Metrics.TimeStage(ctx, "consistency")
	graded, err := consistency.New(cfg, pc.FFmpeg, pc.Dirs.ColorMatch).Run(ctx, state.Clips, scenes)
	done()
	if err != nil {
		return fail("Stage 4 Consistency", err)
	}
	state.ConsistentClips = media.Assets(graded.Clips)
	pc.degrade(ctx, state, "consistency", graded.Clips)

	// ─────────────────────────────────────────────
	// STAGE 5: Audio
	// ─────────────────────────────────────────────
	log.Println("━━━ STAGE 5: Audio ━━━")
	done = pc.Metrics.TimeStage(ctx, "audio")
	track, err := audio.New(cfg, pc.FFmpeg, pc.Dirs.Audio).Run(ctx, audio.CuesFrom(scenes))
	done()
	if err != nil {
		log.Printf("⚠️  Stage 5 Audio failed: %v — continuing without audio", err)
		pc.record(ctx, state, "audio", 0, err.Error())
	}
	state.Audio = track
	for _, seg := range track.Segments {
		if seg.Failed {
			reason := fmt.Sprintf("%s segment failed, filled with silence", seg.AudioType)
			if !strings.Contains(filepath.Base(seg.Path), "_silence.") {
				reason = fmt.Sprintf("%s segment failed and could not be filled", seg.AudioType)
			}
			pc.record(ctx, state, "audio", seg.SceneNumber, reason)
		}
	}
	if err == nil && track.Path == "" {
		pc.record(ctx, state, "audio", 0, "no usable audio track")
	}

	// ─────────────────────────────────────────────
	// STAGE 6: Compose
	// ─────────────────────────────────────────────
	log.Println("━━━ STAGE 6: Compose ━━━")
	done = pc.Metrics.TimeStage(ctx, "compose")
	res, err := render.New(cfg, pc.FFmpeg, pc.Dirs.Final).Run(ctx, state.ConsistentClips, scenes, track.Path, cfg.BrandName)
	done()
	state.MergedVideo = res.MergedVideo
	state.VideoWithAudio = res.VideoWithAudio
	state.FinalVideo = res.FinalVideo
	for _, d := range res.Degradations {
		pc.record(ctx, state, d.Stage, d.SceneNumber, d.Reason)
	}
	if err != nil {
		return fail("Stage 6 Compose", err)
	}

	// ─────────────────────────────────────────────
	// STAGE 7: Publish (optional)
	// ─────────────────────────────────────────────
	if cfg.Upload.Enabled {
		log.Println("━━━ STAGE 7: YouTube Upload ━━━")
		pc.publish(ctx, state)
	}

	log.Printf("✅ Final video: %s", state.FinalVideo)
	return state, nil
}

func (pc *Context) publish(ctx context.Context, state *types.RunState) {
	done := pc.Metrics.TimeStage(ctx, "upload")
	defer done()

	meta := upload.MetadataFor(pc.Cfg, state.Scenes)
	id, url, err := pc.Uploader.Run(ctx, state.FinalVideo, meta)
	if err != nil {
		log.Printf("⚠️  Upload failed: %v — the local video is the result", err)
		pc.record(ctx, state, "upload", 0, err.Error())
		return
	}
	state.YouTubeID = id
	state.YouTubeURL = url
	_, _ = upload.SaveRecord(pc.Cfg.Paths.Logs, upload.Record{
		RunID:     pc.RunID,
		VideoID:   id,
		VideoURL:  url,
		VideoFile: state.FinalVideo,
		Metadata:  meta,
	})
}

// degrade records every substituted outcome of stage
func (pc *Context) degrade(ctx context.Context, state *types.RunState, stage string, outcomes []media.Outcome) {
	for _, o := range outcomes {
		if o.Degraded() {
			pc.record(ctx, state, stage, o.Asset.SceneNumber, o.Err.Error())
		}
	}
}

func (pc *Context) record(ctx context.Context, state *types.RunState, stage string, scene int, reason string) {
	state.Degrade(stage, scene, reason)
	pc.Metrics.RecordDegradation(ctx, stage)
}

// report logs the degradation summary at the end of a run
func report(state *types.RunState) {
	if len(state.Degradations) == 0 {
		log.Println("[pipeline] No degradations")
		return
	}
	log.Printf("[pipeline] ⚠️  %d degradations:", len(state.Degradations))
	for _, d := range state.Degradations {
		if d.SceneNumber > 0 {
			log.Printf("  - %s, scene %d: %s", d.Stage, d.SceneNumber, d.Reason)
		} else {
			log.Printf("  - %s: %s", d.Stage, d.Reason)
		}
	}
}

func saveJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("Warning: could not marshal JSON for %s: %v", path, err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Printf("Warning: could not save %s: %v", path, err)
	}
}
