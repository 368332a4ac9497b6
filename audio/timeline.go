// Package audio builds the background track: one procedurally synthesized
// segment per scene, concatenated in scene order and faded in and out.
package audio

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"ad-video-pipeline/config"
	"ad-video-pipeline/media"
	"ad-video-pipeline/types"
)

// Cue asks for one segment of a given profile and length
type Cue struct {
	SceneNumber int
	AudioType   types.AudioType
	Duration    float64
}

// CuesFrom derives one cue per scene
func CuesFrom(scenes []types.Scene) []Cue {
	cues := make([]Cue, len(scenes))
	for i, s := range scenes {
		cues[i] = Cue{SceneNumber: s.SceneNumber, AudioType: s.AudioType, Duration: s.Duration}
	}
	return cues
}

// Builder synthesizes and assembles the audio timeline
type Builder struct {
	cfg *config.Config
	ff  *media.FFmpeg
	dir string
}

// New writes segments and the final track into dir
func New(cfg *config.Config, ff *media.FFmpeg, dir string) *Builder {
	return &Builder{cfg: cfg, ff: ff, dir: dir}
}

// Run synthesizes every cue and returns the assembled track. A failed
// segment is replaced by silence of the same length, so every later segment
// still starts at its offset and the track spans the sum of the cues. When
// a slot cannot be filled, or no segment synthesized, the track Path is
// empty. The only error is an unusable output directory.
func (b *Builder) Run(ctx context.Context, cues []Cue) (types.AudioTrack, error) {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return types.AudioTrack{}, fmt.Errorf("create audio dir: %w", err)
	}
	log.Printf("[audio] Building %d-segment timeline...", len(cues))

	track := types.AudioTrack{Segments: make([]types.AudioSegment, 0, len(cues))}
	var (
		inputs []string
		offset float64
		real   int
		gap    bool
	)
	for i, cue := range cues {
		kind := types.ParseAudioType(string(cue.AudioType))
		seg := types.AudioSegment{
			SceneNumber: cue.SceneNumber,
			AudioType:   kind,
			Path:        filepath.Join(b.dir, fmt.Sprintf("segment_%02d_%s.%s", cue.SceneNumber, kind, b.format())),
			StartOffset: offset,
			Duration:    cue.Duration,
		}
		log.Printf("[audio] Segment %d/%d: %s, %.1fs at %.1fs", i+1, len(cues), kind, cue.Duration, offset)

		if err := b.ff.Transform(ctx, seg.Path, ProfileArgs(kind, cue.Duration, b.cfg.Audio.SampleRate)...); err != nil {
			seg.Failed = true
			silent := filepath.Join(b.dir, fmt.Sprintf("segment_%02d_silence.%s", cue.SceneNumber, b.format()))
			if serr := b.ff.Transform(ctx, silent, SilenceArgs(cue.Duration, b.cfg.Audio.SampleRate)...); serr != nil {
				log.Printf("[audio] ⚠️  Segment %d failed and silence could not fill it: %v; %v", cue.SceneNumber, err, serr)
				gap = true
			} else {
				log.Printf("[audio] ⚠️  Segment %d failed, filled with silence: %v", cue.SceneNumber, err)
				seg.Path = silent
				inputs = append(inputs, silent)
			}
		} else {
			real++
			inputs = append(inputs, seg.Path)
		}
		track.Segments = append(track.Segments, seg)
		offset += cue.Duration
	}
	track.Duration = offset

	switch {
	case real == 0:
		log.Println("[audio] ⚠️  No usable segments, continuing without audio")
		return track, nil
	case gap:
		log.Println("[audio] ⚠️  Timeline has an unfilled gap, continuing without audio")
		return track, nil
	}

	merged, err := b.concat(ctx, inputs)
	if err != nil {
		log.Printf("[audio] ⚠️  Concatenation failed, continuing without audio: %v", err)
		return track, nil
	}

	track.Path = b.fade(ctx, merged)
	log.Printf("[audio] ✅ Track ready: %s (%.1fs)", filepath.Base(track.Path), track.Duration)
	return track, nil
}

// concat joins segments in order. A single segment is returned unchanged.
func (b *Builder) concat(ctx context.Context, paths []string) (string, error) {
	switch len(paths) {
	case 0:
		return "", nil
	case 1:
		return paths[0], nil
	}
	out := filepath.Join(b.dir, "final_audio."+b.format())
	var args []string
	for _, p := range paths {
		args = append(args, "-i", p)
	}
	args = append(args,
		"-filter_complex", fmt.Sprintf("concat=n=%d:v=0:a=1[out]", len(paths)),
		"-map", "[out]",
	)
	if err := b.ff.Transform(ctx, out, args...); err != nil {
		return "", err
	}
	return out, nil
}

// fade applies the fade-in and fade-out; on failure the unfaded track is kept
func (b *Builder) fade(ctx context.Context, path string) string {
	a := b.cfg.Audio
	start := a.FallbackFadeOutAt
	if dur, err := b.ff.ProbeDuration(ctx, path); err == nil {
		start = math.Max(0, dur-a.FadeOutSec)
	} else {
		log.Printf("[audio] ⚠️  Could not probe duration, fading out at %ss: %v", media.Seconds(start), err)
	}

	out := filepath.Join(b.dir, "final_audio_faded."+b.format())
	filter := fmt.Sprintf("afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s",
		media.Seconds(a.FadeInSec), media.Seconds(start), media.Seconds(a.FadeOutSec))
	if err := b.ff.Transform(ctx, out, "-i", path, "-af", filter); err != nil {
		log.Printf("[audio] ⚠️  Fade failed, keeping unfaded track: %v", err)
		return path
	}
	return out
}

func (b *Builder) format() string {
	if b.cfg.Audio.OutputFormat == "" {
		return "mp3"
	}
	return b.cfg.Audio.OutputFormat
}

// SilenceArgs synthesizes duration seconds of mono silence
func SilenceArgs(duration float64, sampleRate int) []string {
	return []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=mono", sampleRate),
		"-t", media.Seconds(duration),
	}
}

// ProfileArgs returns the ffmpeg input and filter arguments that synthesize
// duration seconds of the given profile. Unknown types use calm.
func ProfileArgs(kind types.AudioType, duration float64, sampleRate int) []string {
	d := media.Seconds(duration)
	sine := func(freq int) []string {
		return []string{"-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=%d:duration=%s", freq, d)}
	}

	switch kind {
	case types.AudioCafe:
		return []string{
			"-f", "lavfi",
			"-i", fmt.Sprintf("anoisesrc=d=%s:c=brown:r=%d:a=0.3", d, sampleRate),
			"-af", "highpass=f=200,lowpass=f=3000,volume=0.4",
		}
	case types.AudioProduct:
		args := append(sine(880), sine(1046)...)
		return append(args, "-filter_complex", "[0:a][1:a]amix=inputs=2:duration=longest,volume=0.3,highpass=f=500")
	default:
		args := append(sine(440), sine(523)...)
		args = append(args, sine(659)...)
		return append(args, "-filter_complex", "[0:a][1:a][2:a]amix=inputs=3:duration=longest:dropout_transition=2,volume=0.2,lowpass=f=2000")
	}
}
