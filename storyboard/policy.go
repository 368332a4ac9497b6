package storyboard

import (
	"ad-video-pipeline/config"
	"ad-video-pipeline/types"
)

// AudioPolicy assigns audio types by scene position: cafe before the product
// is worn, calm while it is worn, product for the trailing showcase scenes.
type AudioPolicy struct {
	WornFromScene int // first scene with the product on; <= 1 means from scene 2
	ProductScenes int // trailing product-focus scenes
}

// PolicyFrom reads the policy from storyboard configuration
func PolicyFrom(sb config.StoryboardConfig) AudioPolicy {
	return AudioPolicy{WornFromScene: sb.WornFromScene, ProductScenes: sb.ProductScenes}
}

// Assign returns a copy of scenes with positional audio types. Scene 1 is
// always cafe.
func (p AudioPolicy) Assign(scenes []types.Scene) []types.Scene {
	out := make([]types.Scene, len(scenes))
	copy(out, scenes)

	worn := p.WornFromScene
	if worn <= 1 {
		worn = 2
	}
	firstProduct := len(out) - p.ProductScenes + 1
	for i := range out {
		pos := i + 1
		switch {
		case pos == 1:
			out[i].AudioType = types.AudioCafe
		case p.ProductScenes > 0 && pos >= firstProduct:
			out[i].AudioType = types.AudioProduct
		case pos >= worn:
			out[i].AudioType = types.AudioCalm
		default:
			out[i].AudioType = types.AudioCafe
		}
	}
	return out
}
