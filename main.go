package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"ad-video-pipeline/config"
	"ad-video-pipeline/media"
	"ad-video-pipeline/observe"
	"ad-video-pipeline/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	storyPath := flag.String("story", "", "narrative file (overrides story_path)")
	flag.Parse()

	// Load .env (local dev only)
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *storyPath != "" {
		cfg.StoryPath = *storyPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	story, err := os.ReadFile(cfg.StoryPath)
	if err != nil {
		log.Fatalf("Failed to read story: %v", err)
	}
	narrative := strings.TrimSpace(string(story))
	if narrative == "" {
		log.Fatalf("Story file %s is empty", cfg.StoryPath)
	}

	for _, dir := range []string{cfg.Paths.Output, cfg.Paths.Logs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create dir %s: %v", dir, err)
		}
	}

	runID := uuid.NewString()[:8]
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	pc, err := pipeline.NewContext(cfg, runID, &media.ExecRunner{}, nil, mp)
	if err != nil {
		log.Fatalf("Failed to set up run: %v", err)
	}

	log.Printf("🎬 Ad pipeline starting for %s, Run ID: %s", cfg.BrandName, runID)
	log.Printf("📁 Output dir: %s", pc.Dirs.Run)

	state, err := pipeline.Run(ctx, pc, narrative)

	metricsFile := filepath.Join(pc.Dirs.Run, "metrics.json")
	if werr := observe.WriteSnapshot(context.Background(), reader, metricsFile); werr != nil {
		log.Printf("Warning: could not save %s: %v", metricsFile, werr)
	}

	if err != nil {
		stop()
		log.Printf("❌ Pipeline failed: %s", state.Error)
		os.Exit(1)
	}
	log.Printf("✅ Pipeline complete! Video: %s", state.FinalVideo)
	if state.YouTubeURL != "" {
		log.Printf("📺 Published: %s", state.YouTubeURL)
	}
}
