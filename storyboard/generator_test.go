package storyboard

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ad-video-pipeline/config"
	"ad-video-pipeline/types"
)

type fakeText struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeText) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

const twoScenes = `[
  {"scene_number": 1, "duration": 10, "visual_description": "Busy cafe", "action": "She sits down", "dialogue": "", "camera_angle": "wide", "audio_type": "cafe"},
  {"scene_number": 2, "duration": 6, "visual_description": "Headphones on the table", "action": "slow push in", "dialogue": "Hear less.", "camera_angle": "close-up", "audio_type": "product"}
]`

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "bare array", raw: twoScenes, want: 2},
		{name: "json fence", raw: "```json\n" + twoScenes + "\n```", want: 2},
		{name: "plain fence with prose", raw: "Here is the storyboard:\n```\n" + twoScenes + "\n```\nEnjoy!", want: 2},
		{name: "wrapped object", raw: `{"scenes": ` + twoScenes + `}`, want: 2},
		{name: "prose around array", raw: "Sure. " + twoScenes + " Let me know.", want: 2},
		{name: "not json", raw: "I cannot help with that.", wantErr: true},
		{name: "empty array", raw: "[]", wantErr: true},
		{name: "broken json", raw: `[{"scene_number": 1, "duration": 8,}]`, wantErr: true},
		{name: "zero duration", raw: `[{"scene_number": 1, "duration": 0}]`, wantErr: true},
		{name: "missing duration", raw: `[{"scene_number": 1}]`, wantErr: true},
		{name: "gap in numbering", raw: `[{"scene_number": 1, "duration": 8}, {"scene_number": 3, "duration": 8}]`, wantErr: true},
		{name: "partial numbering", raw: `[{"scene_number": 1, "duration": 8}, {"duration": 8}]`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scenes, err := Parse(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidStoryboard) {
					t.Fatalf("err = %v, want ErrInvalidStoryboard", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(scenes) != tc.want {
				t.Fatalf("scenes = %d, want %d", len(scenes), tc.want)
			}
		})
	}
}

func TestParse_AssignsNumbersAndDefaults(t *testing.T) {
	raw := `[{"duration": 8, "audio_type": "CAFE"}, {"duration": 9.5, "audio_type": "jazz"}, {"duration": 8}]`
	scenes, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for i, s := range scenes {
		if s.SceneNumber != i+1 {
			t.Errorf("scene %d numbered %d", i, s.SceneNumber)
		}
	}
	if scenes[0].AudioType != types.AudioCafe {
		t.Errorf("scene 1 audio = %q, want cafe", scenes[0].AudioType)
	}
	if scenes[1].AudioType != types.AudioCalm || scenes[2].AudioType != types.AudioCalm {
		t.Errorf("unknown and missing audio types should be calm: %q %q", scenes[1].AudioType, scenes[2].AudioType)
	}
	if scenes[1].Duration != 9.5 {
		t.Errorf("duration = %v, want 9.5", scenes[1].Duration)
	}
}

func TestAudioPolicyAssign(t *testing.T) {
	scenes := make([]types.Scene, 7)
	for i := range scenes {
		scenes[i] = types.Scene{SceneNumber: i + 1, Duration: 8, AudioType: types.AudioProduct}
	}
	got := AudioPolicy{WornFromScene: 3, ProductScenes: 2}.Assign(scenes)

	want := []types.AudioType{
		types.AudioCafe, types.AudioCafe,
		types.AudioCalm, types.AudioCalm, types.AudioCalm,
		types.AudioProduct, types.AudioProduct,
	}
	for i := range want {
		if got[i].AudioType != want[i] {
			t.Errorf("scene %d audio = %q, want %q", i+1, got[i].AudioType, want[i])
		}
	}
	if scenes[0].AudioType != types.AudioProduct {
		t.Error("Assign mutated its input")
	}
}

func TestRun_WritesStoryboardFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	text := &fakeText{reply: "```json\n" + twoScenes + "\n```"}

	scenes, err := New(cfg, text, dir).Run(context.Background(), "A commuter finds quiet in a loud cafe.")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("scenes = %d, want 2", len(scenes))
	}

	data, err := os.ReadFile(filepath.Join(dir, "storyboard.json"))
	if err != nil {
		t.Fatalf("storyboard.json: %v", err)
	}
	var saved []types.Scene
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("storyboard.json: %v", err)
	}
	if len(saved) != 2 || saved[1].AudioType != types.AudioProduct {
		t.Errorf("saved = %+v", saved)
	}

	readable, err := os.ReadFile(filepath.Join(dir, "storyboard_readable.txt"))
	if err != nil {
		t.Fatalf("storyboard_readable.txt: %v", err)
	}
	for _, want := range []string{"Scene 1: 10s", "Scene 2: 6s", "Visual: Busy cafe", "Dialogue: Hear less.", "Audio Type: product"} {
		if !strings.Contains(string(readable), want) {
			t.Errorf("transcript missing %q", want)
		}
	}

	for _, want := range []string{"loud cafe", "6-8 scenes", "8-10 seconds", "from scene 3 onward", "wireless headphones"} {
		if !strings.Contains(text.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestRun_EnforcesAudioPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Storyboard.EnforceAudioPolicy = true
	cfg.Storyboard.WornFromScene = 2
	text := &fakeText{reply: `[{"duration": 8, "audio_type": "calm"}, {"duration": 8, "audio_type": "cafe"}, {"duration": 8, "audio_type": "cafe"}]`}

	scenes, err := New(cfg, text, t.TempDir()).Run(context.Background(), "story")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []types.AudioType{types.AudioCafe, types.AudioCalm, types.AudioProduct}
	for i := range want {
		if scenes[i].AudioType != want[i] {
			t.Errorf("scene %d audio = %q, want %q", i+1, scenes[i].AudioType, want[i])
		}
	}
}

func TestRun_FailuresAreFatal(t *testing.T) {
	cfg := config.Default()

	_, err := New(cfg, &fakeText{err: errors.New("rate limited")}, t.TempDir()).Run(context.Background(), "story")
	if !errors.Is(err, ErrInvalidStoryboard) {
		t.Errorf("generator error: err = %v, want ErrInvalidStoryboard", err)
	}

	dir := t.TempDir()
	_, err = New(cfg, &fakeText{reply: "no json here"}, dir).Run(context.Background(), "story")
	if !errors.Is(err, ErrInvalidStoryboard) {
		t.Errorf("bad reply: err = %v, want ErrInvalidStoryboard", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "storyboard.json")); !os.IsNotExist(err) {
		t.Error("storyboard.json written for an invalid storyboard")
	}
}
