// Package visuals generates the per-scene keyframe images and animated clips
// through the ARK image/video generation API.
package visuals

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"

	"ad-video-pipeline/config"
)

// ArkClient talks to the image generation and video task endpoints
type ArkClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	downloader *http.Client
}

// NewArkClient creates a client for cfg.BaseURL. HTTP calls are instrumented
// on mp; pass nil to use the global provider.
func NewArkClient(cfg config.GenerationConfig, apiKey string, mp metric.MeterProvider) *ArkClient {
	var opts []otelhttp.Option
	if mp != nil {
		opts = append(opts, otelhttp.WithMeterProvider(mp))
	}
	transport := otelhttp.NewTransport(http.DefaultTransport, opts...)
	return &ArkClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		downloader: &http.Client{Timeout: cfg.DownloadTimeout, Transport: transport},
	}
}

// ImageRequest is the body of POST /images/generations, used for both
// generation and edits.
type ImageRequest struct {
	Model                     string `json:"model"`
	Prompt                    string `json:"prompt"`
	SequentialImageGeneration string `json:"sequential_image_generation,omitempty"`
	ResponseFormat            string `json:"response_format"`
	Size                      string `json:"size"`
	Stream                    bool   `json:"stream"`
	Watermark                 bool   `json:"watermark"`
	Image                     string `json:"image,omitempty"`
	ReferenceImage            string `json:"reference_image,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// TaskContent is one element of a video task's content list
type TaskContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
	Role     string    `json:"role,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type taskRequest struct {
	Model   string        `json:"model"`
	Content []TaskContent `json:"content"`
}

// Task is the service's view of a video generation task
type Task struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Content struct {
		VideoURL string `json:"video_url"`
	} `json:"content"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// GenerateImage submits req and returns the URL of the first result
func (c *ArkClient) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	var resp imageResponse
	if err := c.do(ctx, http.MethodPost, "/images/generations", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("image response has no url")
	}
	return resp.Data[0].URL, nil
}

// CreateVideoTask submits an image-to-video task and returns its ID
func (c *ArkClient) CreateVideoTask(ctx context.Context, model string, content []TaskContent) (string, error) {
	var task Task
	if err := c.do(ctx, http.MethodPost, "/contents/generations/tasks", taskRequest{Model: model, Content: content}, &task); err != nil {
		return "", err
	}
	if task.ID == "" {
		return "", fmt.Errorf("task response has no id")
	}
	return task.ID, nil
}

// GetVideoTask fetches the current state of a task
func (c *ArkClient) GetVideoTask(ctx context.Context, id string) (Task, error) {
	var task Task
	err := c.do(ctx, http.MethodGet, "/contents/generations/tasks/"+id, nil, &task)
	return task, err
}

// Download saves url to dest
func (c *ArkClient) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.downloader.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	return os.WriteFile(dest, data, 0644)
}

func (c *ArkClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, truncate(string(respBytes), 200))
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}

// dataURL encodes the file at path as a base64 PNG data URL
func dataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// pause waits d or until ctx is done
func pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
