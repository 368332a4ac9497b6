// Package render assembles the final video: clip merge, audio mux and the
// brand text overlay.
package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ad-video-pipeline/config"
	"ad-video-pipeline/media"
	"ad-video-pipeline/types"
)

// ErrNoClips is returned when there is nothing to merge
var ErrNoClips = errors.New("no clips to merge")

// Result lists every artifact the composer produced. FinalVideo is the best
// one: overlay, else video with audio, else the merged video.
type Result struct {
	MergedVideo    string
	VideoWithAudio string
	FinalVideo     string
	Degradations   []types.Degradation
}

func (r *Result) degrade(scene int, format string, args ...any) {
	r.Degradations = append(r.Degradations, types.Degradation{
		Stage:       "compose",
		SceneNumber: scene,
		Reason:      fmt.Sprintf(format, args...),
	})
}

// Composer runs the merge, mux and overlay sub-stages
type Composer struct {
	cfg *config.Config
	ff  *media.FFmpeg
	dir string
}

// New writes outputs into dir
func New(cfg *config.Config, ff *media.FFmpeg, dir string) *Composer {
	return &Composer{cfg: cfg, ff: ff, dir: dir}
}

// Run merges clips, muxes audioPath (skipped when empty) and overlays brand.
// Every sub-stage falls back to a lesser artifact: a failed merge becomes a
// black video of the full timeline, or the first real clip. The only error
// is a run that leaves nothing playable.
func (c *Composer) Run(ctx context.Context, clips []types.Asset, scenes []types.Scene, audioPath, brand string) (Result, error) {
	var res Result
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return res, fmt.Errorf("create final dir: %w", err)
	}

	merged, err := c.Merge(ctx, clips, scenes, &res)
	if err != nil {
		log.Printf("[render] ⚠️  Merge failed: %v", err)
		note := filepath.Join(c.dir, "merge_failed.txt")
		_ = media.WriteNote(note, []string{"Merging the scene clips failed; see pipeline_state.json for the clips that were produced."}, err)
		res.degrade(0, "merge failed: %v", err)

		merged, err = c.fallback(ctx, clips, scenes, &res)
		if err != nil {
			return res, err
		}
	}
	res.MergedVideo = merged
	res.FinalVideo = merged

	if audioPath == "" {
		log.Println("[render] ⚠️  No audio track, skipping mux")
		res.degrade(0, "no audio track, video is silent")
	} else if withAudio, err := c.Mux(ctx, merged, audioPath); err != nil {
		log.Printf("[render] ⚠️  Mux failed, continuing with silent video: %v", err)
		res.degrade(0, "mux failed: %v", err)
	} else {
		res.VideoWithAudio = withAudio
		res.FinalVideo = withAudio
	}

	if final, err := c.Overlay(ctx, res.FinalVideo, brand); err != nil {
		log.Printf("[render] ⚠️  Text overlay failed, keeping %s: %v", filepath.Base(res.FinalVideo), err)
		res.degrade(0, "text overlay failed: %v", err)
	} else {
		res.FinalVideo = final
	}

	log.Printf("[render] ✅ Final video ready: %s", res.FinalVideo)
	return res, nil
}

// fallback stands in for a failed merge: a black video as long as the whole
// timeline, else the first real clip.
func (c *Composer) fallback(ctx context.Context, clips []types.Asset, scenes []types.Scene, res *Result) (string, error) {
	var total float64
	for _, s := range scenes {
		total += c.sceneLength(s.Duration)
	}
	out := filepath.Join(c.dir, "merged_video.mp4")
	err := c.blank(ctx, out, total)
	if err == nil {
		log.Printf("[render] ⚠️  Using a %ss black video in place of the merge", media.Seconds(total))
		res.degrade(0, "merged video replaced by %ss black video", media.Seconds(total))
		return out, nil
	}
	log.Printf("[render] ⚠️  Black video failed: %v", err)

	threshold := c.cfg.Generation.PlaceholderBytes
	for _, clip := range clips {
		if clip.IsPlaceholder || media.IsPlaceholder(clip.Path, threshold) {
			continue
		}
		log.Printf("[render] ⚠️  Using scene %d clip in place of the merge", clip.SceneNumber)
		res.degrade(clip.SceneNumber, "merged video replaced by this scene's clip")
		return clip.Path, nil
	}
	return "", fmt.Errorf("merge: no playable fallback: %w", err)
}

// Merge concatenates clips in scene order. Placeholder clips are replaced by
// a black slate of the scene's length first. Stream copy is tried before a
// full re-encode, and skipped when slates are mixed in.
func (c *Composer) Merge(ctx context.Context, clips []types.Asset, scenes []types.Scene, res *Result) (string, error) {
	if err := types.CheckAligned(scenes, clips); err != nil {
		return "", fmt.Errorf("merge: %w", err)
	}
	log.Printf("[render] Merging %d clips...", len(clips))

	threshold := c.cfg.Generation.PlaceholderBytes
	var lines []string
	slates := 0
	for i, clip := range clips {
		path := clip.Path
		if clip.IsPlaceholder || media.IsPlaceholder(path, threshold) {
			slate, err := c.slate(ctx, clip.SceneNumber, scenes[i].Duration)
			if err != nil {
				return "", fmt.Errorf("merge: scene %d slate: %w", clip.SceneNumber, err)
			}
			log.Printf("[render] Scene %d: placeholder replaced by black slate", clip.SceneNumber)
			res.degrade(clip.SceneNumber, "placeholder clip replaced by black slate")
			path = slate
			slates++
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("merge: %w", err)
		}
		lines = append(lines, fmt.Sprintf("file '%s'", strings.ReplaceAll(filepath.ToSlash(abs), "'", `'\''`)))
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("merge: %w", ErrNoClips)
	}

	list := filepath.Join(c.dir, "concat_list.txt")
	if err := os.WriteFile(list, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return "", fmt.Errorf("merge: %w", err)
	}

	out := filepath.Join(c.dir, "merged_video.mp4")
	input := []string{"-f", "concat", "-safe", "0", "-i", list}
	if slates == 0 {
		err := c.ff.Transform(ctx, out, append(input, "-c", "copy")...)
		if err == nil {
			return out, nil
		}
		log.Printf("[render] Stream copy failed, re-encoding: %v", err)
	}

	r := c.cfg.Render
	args := append(input,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
			r.Width, r.Height, r.Width, r.Height),
		"-r", strconv.Itoa(r.FPS),
	)
	args = append(args, CompatArgs(r)...)
	if err := c.ff.Transform(ctx, out, args...); err != nil {
		return "", fmt.Errorf("merge: %w", err)
	}
	return out, nil
}

// slate renders a black clip standing in for a failed scene
func (c *Composer) slate(ctx context.Context, scene int, duration float64) (string, error) {
	out := filepath.Join(c.dir, fmt.Sprintf("slate_%02d.mp4", scene))
	return out, c.blank(ctx, out, c.sceneLength(duration))
}

// sceneLength is how long a scene's clip runs once generation caps it
func (c *Composer) sceneLength(duration float64) float64 {
	if limit := float64(c.cfg.Generation.MaxClipSec); limit > 0 {
		return math.Min(duration, limit)
	}
	return duration
}

// blank renders duration seconds of black video at the output size
func (c *Composer) blank(ctx context.Context, out string, duration float64) error {
	r := c.cfg.Render
	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:d=%s:r=%d", r.Width, r.Height, media.Seconds(duration), r.FPS),
	}
	args = append(args, VideoArgs(r)...)
	return c.ff.Transform(ctx, out, args...)
}

// Mux adds the audio track: video copied, audio re-encoded to AAC
func (c *Composer) Mux(ctx context.Context, video, audio string) (string, error) {
	log.Println("[render] Combining video + audio...")
	out := filepath.Join(c.dir, "video_with_audio.mp4")
	err := c.ff.Transform(ctx, out,
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", c.cfg.Render.AudioBitrate,
		"-shortest",
		"-movflags", "+faststart",
	)
	return out, err
}

// Overlay draws the brand name over the last TextWindowSec of video
func (c *Composer) Overlay(ctx context.Context, video, brand string) (string, error) {
	r := c.cfg.Render
	start := r.TextFallbackAt
	if dur, err := c.ff.ProbeDuration(ctx, video); err == nil {
		start = math.Max(0, dur-r.TextWindowSec)
	} else {
		log.Printf("[render] ⚠️  Could not probe duration, showing text at %ss: %v", media.Seconds(start), err)
	}
	log.Printf("[render] Adding %q at %ss...", brand, media.Seconds(start))

	textFile := filepath.Join(c.dir, "overlay_text.txt")
	if err := os.WriteFile(textFile, []byte(brand), 0644); err != nil {
		return "", fmt.Errorf("write overlay text: %w", err)
	}
	out := filepath.Join(c.dir, "final_with_text.mp4")
	args := []string{"-i", video, "-vf", TextFilter(textFile, start, r)}
	args = append(args, VideoArgs(r)...)
	args = append(args, "-c:a", "copy", "-movflags", "+faststart")
	return out, c.ff.Transform(ctx, out, args...)
}

// TextFilter builds the drawtext filter for the text stored in textFile:
// centered, fading in over 1s at start, holding, and fading out over the
// last 1s of the window. The text is read verbatim, without expansion.
func TextFilter(textFile string, start float64, r config.RenderConfig) string {
	s := media.Seconds(start)
	alpha := fmt.Sprintf("if(lt(t,%s),0,if(lt(t,%s),(t-%s)/1,if(lt(t,%s),1,(%s-t)/1)))",
		s, media.Seconds(start+1), s, media.Seconds(start+r.TextWindowSec-1), media.Seconds(start+r.TextWindowSec))

	parts := []string{
		"drawtext=textfile=" + filterValue(textFile),
		"expansion=none",
	}
	if r.TextFontFile != "" {
		parts = append(parts, "fontfile="+filterValue(r.TextFontFile))
	}
	parts = append(parts,
		"fontsize="+strconv.Itoa(r.TextFontSize),
		"fontcolor=white",
		"x=(w-text_w)/2",
		"y=(h-text_h)/2",
		"alpha='"+alpha+"'",
		"shadowcolor=black@0.8",
		"shadowx=4",
		"shadowy=4",
	)
	return strings.Join(parts, ":")
}

// VideoArgs is the broadly playable H.264 encoding profile
func VideoArgs(r config.RenderConfig) []string {
	return []string{
		"-c:v", "libx264",
		"-profile:v", r.VideoProfile,
		"-level", r.VideoLevel,
		"-pix_fmt", r.PixelFormat,
		"-crf", strconv.Itoa(r.CRF),
		"-preset", r.Preset,
	}
}

// CompatArgs is VideoArgs plus stereo AAC audio and fast start
func CompatArgs(r config.RenderConfig) []string {
	args := VideoArgs(r)
	return append(args,
		"-c:a", "aac",
		"-b:a", r.AudioBitrate,
		"-ar", strconv.Itoa(r.AudioSampleRate),
		"-ac", "2",
		"-movflags", "+faststart",
	)
}

// filterValue escapes s as an unquoted option value inside a -vf graph:
// once for the filter's option parser, then once for the graph parser.
func filterValue(s string) string {
	opt := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`).Replace(s)
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`).Replace(opt)
}
