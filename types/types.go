package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMisaligned is returned when two per-scene collections disagree in length
// or scene numbering.
var ErrMisaligned = errors.New("stage outputs are not aligned with scenes")

// AudioType selects the procedural audio profile for a scene
type AudioType string

const (
	AudioCafe    AudioType = "cafe"    // ambient chatter before the product is used
	AudioCalm    AudioType = "calm"    // product in use
	AudioProduct AudioType = "product" // closing product shots
)

// ParseAudioType maps free text to a known AudioType. Anything unrecognized,
// including the empty string, is AudioCalm.
func ParseAudioType(s string) AudioType {
	switch AudioType(strings.ToLower(strings.TrimSpace(s))) {
	case AudioCafe:
		return AudioCafe
	case AudioProduct:
		return AudioProduct
	default:
		return AudioCalm
	}
}

// Scene is one storyboard entry
type Scene struct {
	SceneNumber       int       `json:"scene_number"`
	Duration          float64   `json:"duration"`
	VisualDescription string    `json:"visual_description"`
	Action            string    `json:"action"`
	Dialogue          string    `json:"dialogue"`
	CameraAngle       string    `json:"camera_angle"`
	AudioType         AudioType `json:"audio_type"`
}

// Asset is a produced media file (image or clip) for one scene
type Asset struct {
	SceneNumber   int    `json:"scene_number"`
	Path          string `json:"path"`
	IsPlaceholder bool   `json:"is_placeholder"`
	ReferenceOf   int    `json:"reference_of,omitempty"` // scene whose asset anchored this one, 0 = none
	Note          string `json:"note,omitempty"`         // diagnostic sidecar, set for placeholders
}

// AudioSegment is the synthesized audio for one scene
type AudioSegment struct {
	SceneNumber int       `json:"scene_number"`
	AudioType   AudioType `json:"audio_type"`
	Path        string    `json:"path"`
	StartOffset float64   `json:"start_offset"`
	Duration    float64   `json:"duration"`
	Failed      bool      `json:"failed,omitempty"`
}

// AudioTrack is the concatenated background audio for the whole video.
// Path is empty when no usable track could be produced.
type AudioTrack struct {
	Path     string         `json:"path"`
	Duration float64        `json:"duration"`
	Segments []AudioSegment `json:"segments"`
}

// Degradation records one recoverable failure and what was substituted
type Degradation struct {
	Stage       string `json:"stage"`
	SceneNumber int    `json:"scene_number,omitempty"`
	Reason      string `json:"reason"`
}

// RunState tracks the full state of one pipeline run
type RunState struct {
	RunID           string        `json:"run_id"`
	StartedAt       string        `json:"started_at"`
	CompletedAt     string        `json:"completed_at"`
	Brand           string        `json:"brand"`
	Scenes          []Scene       `json:"scenes"`
	Images          []Asset       `json:"images"`
	EditedImages    []Asset       `json:"edited_images,omitempty"`
	Clips           []Asset       `json:"clips"`
	ConsistentClips []Asset       `json:"consistent_clips"`
	Audio           AudioTrack    `json:"audio"`
	MergedVideo     string        `json:"merged_video"`
	VideoWithAudio  string        `json:"video_with_audio"`
	FinalVideo      string        `json:"final_video"`
	Degradations    []Degradation `json:"degradations"`
	YouTubeID       string        `json:"youtube_id,omitempty"`
	YouTubeURL      string        `json:"youtube_url,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Degrade appends a degradation record
func (s *RunState) Degrade(stage string, scene int, reason string) {
	s.Degradations = append(s.Degradations, Degradation{Stage: stage, SceneNumber: scene, Reason: reason})
}

// TotalDuration sums scene durations
func TotalDuration(scenes []Scene) float64 {
	var total float64
	for _, s := range scenes {
		total += s.Duration
	}
	return total
}

// CheckAligned verifies assets are index-aligned with scenes by scene number
func CheckAligned(scenes []Scene, assets []Asset) error {
	if len(scenes) != len(assets) {
		return fmt.Errorf("%w: %d scenes, %d assets", ErrMisaligned, len(scenes), len(assets))
	}
	for i := range scenes {
		if assets[i].SceneNumber != scenes[i].SceneNumber {
			return fmt.Errorf("%w: index %d holds scene %d, want %d",
				ErrMisaligned, i, assets[i].SceneNumber, scenes[i].SceneNumber)
		}
	}
	return nil
}
