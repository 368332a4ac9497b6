package storyboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"ad-video-pipeline/config"
	"ad-video-pipeline/types"
)

// TextGenerator turns one prompt into raw model text
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator calls any OpenAI-compatible chat completion endpoint
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAIGenerator builds a chat client. An empty BaseURL talks to OpenAI;
// set it to point at Groq or another compatible provider.
func NewOpenAIGenerator(cfg config.StoryboardConfig, apiKey string) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIGenerator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a professional advertisement storyboard writer. Respond with valid JSON only."),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(g.model),
		Temperature: openai.Float(g.temperature),
	}
	if g.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(g.maxTokens))
	}
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Generator turns a narrative into a validated storyboard
type Generator struct {
	cfg  *config.Config
	text TextGenerator
	dir  string
}

// New creates a Generator that persists its output under dir
func New(cfg *config.Config, text TextGenerator, dir string) *Generator {
	return &Generator{cfg: cfg, text: text, dir: dir}
}

// Run requests a storyboard for narrative, parses and validates it, and writes
// storyboard.json and storyboard_readable.txt. Any failure is fatal for the
// run; nothing is fabricated.
func (g *Generator) Run(ctx context.Context, narrative string) ([]types.Scene, error) {
	sb := g.cfg.Storyboard
	log.Printf("[storyboard] Requesting %d-%d scenes from %s...", sb.MinScenes, sb.MaxScenes, sb.Model)

	raw, err := g.text.Generate(ctx, BuildPrompt(sb, narrative))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStoryboard, err)
	}

	scenes, err := Parse(raw)
	if err != nil {
		_ = os.WriteFile(filepath.Join(g.dir, "storyboard_raw.txt"), []byte(raw), 0644)
		return nil, err
	}

	if n := len(scenes); n < sb.MinScenes || n > sb.MaxScenes {
		log.Printf("[storyboard] ⚠️  %d scenes outside the requested %d-%d range, continuing", n, sb.MinScenes, sb.MaxScenes)
	}
	if sb.EnforceAudioPolicy {
		scenes = PolicyFrom(sb).Assign(scenes)
	}

	if err := g.save(scenes); err != nil {
		return nil, err
	}
	log.Printf("[storyboard] ✅ %d scenes, %.0fs total", len(scenes), types.TotalDuration(scenes))
	return scenes, nil
}

func (g *Generator) save(scenes []types.Scene) error {
	data, err := json.MarshalIndent(scenes, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal storyboard: %w", err)
	}
	if err := os.WriteFile(filepath.Join(g.dir, "storyboard.json"), data, 0644); err != nil {
		return fmt.Errorf("write storyboard: %w", err)
	}
	if err := os.WriteFile(filepath.Join(g.dir, "storyboard_readable.txt"), []byte(Readable(scenes)), 0644); err != nil {
		return fmt.Errorf("write storyboard transcript: %w", err)
	}
	return nil
}

// Readable renders the storyboard as a plain-text transcript
func Readable(scenes []types.Scene) string {
	var sb strings.Builder
	sb.WriteString("STORYBOARD\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")
	for _, s := range scenes {
		fmt.Fprintf(&sb, "Scene %d: %ss\n", s.SceneNumber, formatSec(s.Duration))
		sb.WriteString(strings.Repeat("-", 60) + "\n")
		fmt.Fprintf(&sb, "Visual: %s\n\n", s.VisualDescription)
		fmt.Fprintf(&sb, "Action: %s\n\n", s.Action)
		fmt.Fprintf(&sb, "Dialogue: %s\n\n", s.Dialogue)
		fmt.Fprintf(&sb, "Camera: %s\n", s.CameraAngle)
		fmt.Fprintf(&sb, "Audio Type: %s\n\n", s.AudioType)
	}
	return sb.String()
}

// BuildPrompt embeds the narrative policy: wardrobe continuity, audio type
// assignment, product placement continuity and the timing envelope.
func BuildPrompt(sb config.StoryboardConfig, narrative string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following %s advertisement story, create a detailed storyboard for a %d-second video.\n\n",
		sb.Product, sb.TargetDurationSec)
	fmt.Fprintf(&b, "STORY:\n%s\n\n", strings.TrimSpace(narrative))

	b.WriteString("Requirements:\n")
	fmt.Fprintf(&b, "1. Break the story into %d-%d scenes, each %d-%d seconds, totalling about %d seconds\n",
		sb.MinScenes, sb.MaxScenes, sb.MinSceneSec, sb.MaxSceneSec, sb.TargetDurationSec)
	b.WriteString("2. Each scene must include:\n")
	b.WriteString("   - scene_number: scene number starting at 1\n")
	b.WriteString("   - duration: length in seconds\n")
	b.WriteString("   - visual_description: detailed description of what is on screen\n")
	b.WriteString("   - action: the motion that happens in the scene\n")
	b.WriteString("   - dialogue: voice-over or on-screen line, may be empty\n")
	b.WriteString("   - camera_angle: shot type and camera movement\n")
	b.WriteString(`   - audio_type: one of "cafe", "calm", "product"` + "\n")
	fmt.Fprintf(&b, "     * \"cafe\": scenes before the %s are worn (noisy cafe ambience)\n", sb.Product)
	fmt.Fprintf(&b, "     * \"calm\": scenes with the %s on (calm music)\n", sb.Product)
	b.WriteString("     * \"product\": final product showcase scenes (upbeat music)\n")

	b.WriteString("3. Continuity rules:\n")
	b.WriteString("   - The first scene establishes the character and the style in detail, audio_type \"cafe\"\n")
	b.WriteString("   - Keep the character's appearance and clothing identical in every scene\n")
	if sb.WornFromScene > 0 {
		fmt.Fprintf(&b, "   - The %s rest on the table until they are put on; from scene %d onward the character wears them, audio_type \"calm\"\n",
			sb.Product, sb.WornFromScene)
	}
	fmt.Fprintf(&b, "   - The %s are either resting or worn, never both in the same scene\n", sb.Product)
	if sb.ProductScenes > 0 {
		fmt.Fprintf(&b, "   - The last %d scene(s) are product close-ups highlighting the brand logo, audio_type \"product\"\n", sb.ProductScenes)
	}
	b.WriteString("   - Every scene follows logically from the previous one\n\n")

	b.WriteString(`Respond ONLY with a JSON array of scenes, or {"scenes": [...]}. No markdown. No explanation.`)
	return b.String()
}

func formatSec(v float64) string {
	if v == float64(int(v)) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%.1f", v)
}
