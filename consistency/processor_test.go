package consistency

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"ad-video-pipeline/config"
	"ad-video-pipeline/media"
	"ad-video-pipeline/media/mock"
	"ad-video-pipeline/types"
)

func setup(t *testing.T, n int) ([]types.Asset, []types.Scene, string) {
	t.Helper()
	dir := t.TempDir()
	clips := make([]types.Asset, n)
	scenes := make([]types.Scene, n)
	for i := range clips {
		path := filepath.Join(dir, fmt.Sprintf("clip_%02d.mp4", i+1))
		if err := os.WriteFile(path, make([]byte, 4096), 0644); err != nil {
			t.Fatal(err)
		}
		clips[i] = types.Asset{SceneNumber: i + 1, Path: path}
		scenes[i] = types.Scene{SceneNumber: i + 1, Duration: 8}
	}
	return clips, scenes, filepath.Join(dir, "color_match")
}

func TestRun_GradingOrderAndTransitions(t *testing.T) {
	clips, scenes, dir := setup(t, 3)
	runner := &mock.Runner{}
	p := New(config.Default(), media.NewFFmpeg(runner), dir)

	res, err := p.Run(context.Background(), clips, scenes)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[int][]string{
		1: {OpNormalize, OpFadeOut},
		2: {OpNormalize, OpColorMatch, OpFadeOut},
		3: {OpNormalize, OpColorMatch, OpCopy},
	}
	if !reflect.DeepEqual(res.Applied, want) {
		t.Errorf("applied = %v, want %v", res.Applied, want)
	}

	if n := len(runner.Matching("eq=brightness=0:contrast=1.1:saturation=1.0,curves=preset=lighter")); n != 3 {
		t.Errorf("normalize calls = %d, want 3", n)
	}
	if n := len(runner.Matching("colorlevels=rimax=0.902", "colorbalance=rs=0.1")); n != 2 {
		t.Errorf("color match calls = %d, want 2", n)
	}
	if n := len(runner.Matching("fade=t=out:st=7.5:d=0.5")); n != 2 {
		t.Errorf("fade calls = %d, want 2", n)
	}
	if n := len(runner.Matching("-c copy")); n != 1 {
		t.Errorf("copy calls = %d, want 1", n)
	}

	// Color match for scene 2 must read the normalized version.
	match := runner.Matching("colorlevels", "clip_02")
	if len(match) != 0 {
		t.Error("color match read the raw clip instead of the normalized one")
	}
	if len(runner.Matching("colorlevels", "normalized_02.mp4")) != 1 {
		t.Error("color match did not chain from normalized_02.mp4")
	}

	for i, c := range res.Clips {
		if c.Degraded() {
			t.Errorf("clip %d degraded: %v", i+1, c.Err)
		}
		if want := filepath.Join(dir, fmt.Sprintf("smoothed_%02d.mp4", i+1)); c.Asset.Path != want {
			t.Errorf("clip %d path = %q, want %q", i+1, c.Asset.Path, want)
		}
	}
}

func TestRun_SkipsPlaceholders(t *testing.T) {
	clips, scenes, dir := setup(t, 3)
	stub := filepath.Join(filepath.Dir(clips[1].Path), "clip_02.mp4")
	if err := media.WritePlaceholder(stub, "Placeholder for video clip 2"); err != nil {
		t.Fatal(err)
	}
	clips[1] = types.Asset{SceneNumber: 2, Path: stub, IsPlaceholder: true}

	runner := &mock.Runner{}
	res, err := New(config.Default(), media.NewFFmpeg(runner), dir).Run(context.Background(), clips, scenes)
	if err != nil {
		t.Fatal(err)
	}
	if res.Clips[1].Asset != clips[1] {
		t.Errorf("placeholder changed: %+v", res.Clips[1].Asset)
	}
	if _, ok := res.Applied[2]; ok {
		t.Errorf("operations applied to placeholder: %v", res.Applied[2])
	}
	for _, c := range runner.Calls() {
		if strings.Contains(c.Line(), "clip_02") || strings.Contains(c.Line(), "_02.") {
			t.Errorf("placeholder was processed: %s", c.Line())
		}
	}
}

func TestRun_FailedStepKeepsPreviousVersion(t *testing.T) {
	clips, scenes, dir := setup(t, 2)
	runner := &mock.Runner{FailIf: func(c mock.Call) bool {
		return strings.Contains(c.Line(), "colorlevels")
	}}
	res, err := New(config.Default(), media.NewFFmpeg(runner), dir).Run(context.Background(), clips, scenes)
	if err != nil {
		t.Fatal(err)
	}

	if !res.Clips[1].Degraded() {
		t.Error("expected the failed color match to be reported")
	}
	if want := []string{OpNormalize, OpCopy}; !reflect.DeepEqual(res.Applied[2], want) {
		t.Errorf("applied = %v, want %v", res.Applied[2], want)
	}
	if len(runner.Matching("-c copy", "normalized_02.mp4")) != 1 {
		t.Error("final step did not continue from the normalized clip")
	}
	if _, err := os.Stat(filepath.Join(dir, "matched_02.mp4")); !os.IsNotExist(err) {
		t.Error("failed step left an output file")
	}
}

func TestRun_Disabled(t *testing.T) {
	clips, scenes, dir := setup(t, 2)
	cfg := config.Default()
	cfg.Consistency.Enabled = false
	runner := &mock.Runner{}

	res, err := New(cfg, media.NewFFmpeg(runner), dir).Run(context.Background(), clips, scenes)
	if err != nil {
		t.Fatal(err)
	}
	if len(runner.Calls()) != 0 {
		t.Errorf("calls = %d, want 0", len(runner.Calls()))
	}
	if !reflect.DeepEqual(media.Assets(res.Clips), clips) {
		t.Errorf("clips changed: %+v", res.Clips)
	}
}

func TestRun_Misaligned(t *testing.T) {
	clips, scenes, dir := setup(t, 2)
	_, err := New(config.Default(), media.NewFFmpeg(&mock.Runner{}), dir).Run(context.Background(), clips[:1], scenes)
	if !errors.Is(err, types.ErrMisaligned) {
		t.Errorf("err = %v, want ErrMisaligned", err)
	}
}

func TestFadeStart(t *testing.T) {
	cfg := config.Default()
	tests := []struct {
		duration float64
		want     float64
	}{
		{8, 7.5},
		{10, 7.5},
		{12, 7.5},
		{6, 5.5},
		{0.3, 0},
	}
	for _, tc := range tests {
		if got := FadeStart(tc.duration, cfg); got != tc.want {
			t.Errorf("FadeStart(%v) = %v, want %v", tc.duration, got, tc.want)
		}
	}
}
