package upload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"

	"ad-video-pipeline/config"
	"ad-video-pipeline/types"
)

func TestMetadataFor(t *testing.T) {
	cfg := config.Default()
	cfg.BrandName = "HAHA HEADPHONE"
	scenes := []types.Scene{
		{SceneNumber: 1, Dialogue: ""},
		{SceneNumber: 2, Dialogue: "Finally, quiet."},
		{SceneNumber: 3, Dialogue: "HAHA. Hear what matters."},
	}

	meta := MetadataFor(cfg, scenes)
	if meta.Title != "HAHA HEADPHONE | Official Ad" {
		t.Errorf("title = %q", meta.Title)
	}
	if !strings.Contains(meta.Description, "Finally, quiet.\nHAHA. Hear what matters.") {
		t.Errorf("description = %q", meta.Description)
	}
	if meta.Visibility != "private" || meta.CategoryID != "22" {
		t.Errorf("meta = %+v", meta)
	}
	if len(meta.Tags) != 4 || meta.Tags[1] != "wireless" {
		t.Errorf("tags = %v", meta.Tags)
	}
}

func TestRun_UploadsToService(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"vid123","kind":"youtube#video"}`))
	}))
	defer srv.Close()

	video := filepath.Join(t.TempDir(), "final_with_text.mp4")
	if err := os.WriteFile(video, make([]byte, 2048), 0644); err != nil {
		t.Fatal(err)
	}

	u := New(config.Default(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	id, url, err := u.Run(context.Background(), video, Metadata{Title: "T", Visibility: "private"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if id != "vid123" || url != "https://www.youtube.com/watch?v=vid123" {
		t.Errorf("id, url = %q, %q", id, url)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) == 0 || !strings.Contains(paths[0], "/upload/youtube/v3/videos") {
		t.Errorf("paths = %v", paths)
	}
}

func TestRun_MissingCredentials(t *testing.T) {
	t.Setenv("YOUTUBE_CLIENT_ID", "")
	t.Setenv("YOUTUBE_CLIENT_SECRET", "")
	t.Setenv("YOUTUBE_REFRESH_TOKEN", "")

	_, _, err := New(config.Default()).Run(context.Background(), "missing.mp4", Metadata{})
	if err == nil || !strings.Contains(err.Error(), "YOUTUBE_CLIENT_ID") {
		t.Errorf("err = %v", err)
	}
}

func TestSaveRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	path, err := SaveRecord(dir, Record{RunID: "ab12cd34", VideoID: "vid123"})
	if err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if filepath.Base(path) != "upload_ab12cd34.json" {
		t.Errorf("path = %q", path)
	}
	data, _ := os.ReadFile(path)
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.VideoID != "vid123" || rec.UploadedAt == "" {
		t.Errorf("record = %+v", rec)
	}
}
