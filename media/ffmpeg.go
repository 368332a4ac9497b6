package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FFmpeg runs filter/transform invocations and duration probes
type FFmpeg struct {
	runner  Runner
	ffmpeg  string
	ffprobe string
}

// NewFFmpeg creates an FFmpeg bound to runner using the ffmpeg/ffprobe found
// on PATH.
func NewFFmpeg(runner Runner) *FFmpeg {
	return &FFmpeg{runner: runner, ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
}

// Transform runs `ffmpeg -y <args...> <out>`. The output is written to a
// sibling .partial file and renamed into place only on success, so a failed
// invocation never replaces or leaves a truncated file at out.
func (f *FFmpeg) Transform(ctx context.Context, out string, args ...string) error {
	partial := partialPath(out)
	full := append([]string{"-y"}, args...)
	full = append(full, partial)

	if err := f.runner.Run(ctx, f.ffmpeg, full...); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("ffmpeg %s: %w", filepath.Base(out), err)
	}
	if _, err := os.Stat(partial); err != nil {
		return fmt.Errorf("ffmpeg %s: no output produced: %w", filepath.Base(out), err)
	}
	if err := os.Rename(partial, out); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("ffmpeg %s: %w", filepath.Base(out), err)
	}
	return nil
}

// ProbeDuration returns the container duration of path in seconds
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := f.runner.Output(ctx, f.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse duration: %w", filepath.Base(path), err)
	}
	if dur <= 0 {
		return 0, errors.New("ffprobe " + filepath.Base(path) + ": non-positive duration")
	}
	return dur, nil
}

func partialPath(out string) string {
	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + ".partial" + ext
}

// Seconds formats a timestamp or duration the way the filter expressions
// expect it.
func Seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
