// Package upload publishes the finished advertisement to YouTube.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ad-video-pipeline/config"
	"ad-video-pipeline/types"
)

// Metadata is what YouTube shows for the video
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"category_id"`
	Visibility  string   `json:"visibility"`
}

// MetadataFor derives the listing from the brand and the storyboard dialogue
func MetadataFor(cfg *config.Config, scenes []types.Scene) Metadata {
	var lines []string
	for _, s := range scenes {
		if d := strings.TrimSpace(s.Dialogue); d != "" {
			lines = append(lines, d)
		}
	}
	desc := cfg.BrandName
	if len(lines) > 0 {
		desc += "\n\n" + strings.Join(lines, "\n")
	}

	tags := []string{cfg.BrandName}
	tags = append(tags, strings.Fields(strings.ToLower(cfg.Storyboard.Product))...)
	tags = append(tags, "advertisement")

	return Metadata{
		Title:       cfg.BrandName + " | Official Ad",
		Description: desc,
		Tags:        tags,
		CategoryID:  cfg.Upload.CategoryID,
		Visibility:  cfg.Upload.Visibility,
	}
}

// Uploader handles YouTube video upload via Data API v3
type Uploader struct {
	cfg  *config.Config
	opts []option.ClientOption
}

// New creates an Uploader. Without opts it authenticates with the
// YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET and YOUTUBE_REFRESH_TOKEN
// environment variables.
func New(cfg *config.Config, opts ...option.ClientOption) *Uploader {
	return &Uploader{cfg: cfg, opts: opts}
}

// Run uploads videoFile and returns the video ID and watch URL
func (u *Uploader) Run(ctx context.Context, videoFile string, meta Metadata) (string, string, error) {
	opts := u.opts
	if len(opts) == 0 {
		log.Println("[upload] Authenticating with YouTube API...")
		ts, err := tokenSource(ctx)
		if err != nil {
			return "", "", fmt.Errorf("youtube auth: %w", err)
		}
		opts = []option.ClientOption{option.WithTokenSource(ts)}
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return "", "", fmt.Errorf("youtube service: %w", err)
	}

	log.Printf("[upload] Uploading: %q", meta.Title)
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                meta.Title,
			Description:          meta.Description,
			Tags:                 meta.Tags,
			CategoryId:           meta.CategoryID,
			DefaultLanguage:      u.cfg.Upload.DefaultLanguage,
			DefaultAudioLanguage: u.cfg.Upload.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           meta.Visibility,
			SelfDeclaredMadeForKids: u.cfg.Upload.MadeForKids,
		},
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return "", "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		log.Printf("[upload] File size: %.1f MB", float64(fi.Size())/1024/1024)
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(u.cfg.Upload.NotifySubscribers).
		Media(f).
		Context(ctx).
		Do()
	if err != nil {
		return "", "", fmt.Errorf("youtube upload: %w", err)
	}

	videoURL := "https://www.youtube.com/watch?v=" + uploaded.Id
	log.Printf("[upload] ✅ Uploaded: %s", videoURL)
	return uploaded.Id, videoURL, nil
}

// tokenSource builds a refreshing OAuth2 token source from env credentials
func tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")

	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return conf.TokenSource(ctx, token), nil
}

// Record is the upload log entry kept next to the run's other logs
type Record struct {
	RunID      string   `json:"run_id"`
	VideoID    string   `json:"video_id"`
	VideoURL   string   `json:"video_url"`
	VideoFile  string   `json:"video_file"`
	Metadata   Metadata `json:"metadata"`
	UploadedAt string   `json:"uploaded_at"`
}

// SaveRecord writes rec to dir/upload_<runID>.json
func SaveRecord(dir string, rec Record) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	if rec.UploadedAt == "" {
		rec.UploadedAt = time.Now().UTC().Format(time.RFC3339)
	}
	path := filepath.Join(dir, fmt.Sprintf("upload_%s.json", rec.RunID))
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	log.Printf("[upload] Upload log saved: %s", path)
	return path, nil
}
