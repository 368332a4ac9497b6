// Package storyboard turns a narrative into the scene list every later stage
// works from.
package storyboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ad-video-pipeline/types"
)

// ErrInvalidStoryboard is returned when the model's answer cannot be turned
// into a usable scene list.
var ErrInvalidStoryboard = errors.New("invalid storyboard")

// sceneJSON mirrors types.Scene with optional fields so absent values can be
// told apart from zero values.
type sceneJSON struct {
	SceneNumber       *int     `json:"scene_number"`
	Duration          *float64 `json:"duration"`
	VisualDescription string   `json:"visual_description"`
	Action            string   `json:"action"`
	Dialogue          string   `json:"dialogue"`
	CameraAngle       string   `json:"camera_angle"`
	AudioType         string   `json:"audio_type"`
}

// Parse extracts and validates scenes from raw model output. It accepts a
// bare array or {"scenes": [...]}, optionally inside a ```json fence or
// surrounded by prose.
func Parse(raw string) ([]types.Scene, error) {
	body := extractJSON(cleanJSON(raw))
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON found in response", ErrInvalidStoryboard)
	}

	var items []sceneJSON
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStoryboard, err)
		}
	} else {
		var wrapped struct {
			Scenes []sceneJSON `json:"scenes"`
		}
		if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStoryboard, err)
		}
		items = wrapped.Scenes
	}
	return validate(items)
}

func validate(items []sceneJSON) ([]types.Scene, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no scenes", ErrInvalidStoryboard)
	}

	numbered := 0
	for _, it := range items {
		if it.SceneNumber != nil {
			numbered++
		}
	}
	if numbered != 0 && numbered != len(items) {
		return nil, fmt.Errorf("%w: %d of %d scenes are numbered", ErrInvalidStoryboard, numbered, len(items))
	}

	scenes := make([]types.Scene, len(items))
	for i, it := range items {
		n := i + 1
		if it.SceneNumber != nil && *it.SceneNumber != n {
			return nil, fmt.Errorf("%w: scene at position %d is numbered %d", ErrInvalidStoryboard, n, *it.SceneNumber)
		}
		if it.Duration == nil || *it.Duration <= 0 {
			return nil, fmt.Errorf("%w: scene %d has no positive duration", ErrInvalidStoryboard, n)
		}
		scenes[i] = types.Scene{
			SceneNumber:       n,
			Duration:          *it.Duration,
			VisualDescription: strings.TrimSpace(it.VisualDescription),
			Action:            strings.TrimSpace(it.Action),
			Dialogue:          strings.TrimSpace(it.Dialogue),
			CameraAngle:       strings.TrimSpace(it.CameraAngle),
			AudioType:         types.ParseAudioType(it.AudioType),
		}
	}
	return scenes, nil
}

// cleanJSON strips markdown fences if the model wraps its answer in ```json ... ```
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = rest
	}
	return strings.TrimSpace(s)
}

// extractJSON returns the outermost array or object in s, skipping any
// leading or trailing prose.
func extractJSON(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	closer := byte(']')
	if s[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}
