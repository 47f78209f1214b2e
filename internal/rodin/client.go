// Package rodin is a client for the Hyper3D Rodin 3D generation API.
//
// Generation is asynchronous: CreateJob submits a prompt or reference images
// and returns a subscription key, Status polls it, and Download fetches the
// finished model once every job reports Done.
package rodin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/remote"
)

const (
	// DefaultBaseURL is the public Rodin API
	DefaultBaseURL = "https://hyperhuman.deemos.com/api"

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 60 * time.Second

	// DefaultTier is the generation quality tier used when none is given
	DefaultTier = "Sketch"

	service      = "generation service"
	maxErrorBody = 4 << 10
)

// Job states reported by Status.
const (
	StatusWaiting    = "Waiting"
	StatusGenerating = "Generating"
	StatusDone       = "Done"
	StatusFailed     = "Failed"
)

// ErrNoAPIKey is returned when the client has no API key.
var ErrNoAPIKey = errors.New("generation service API key is not configured (generated_content.api_key)")

// Client talks to the generation API
type Client struct {
	// BaseURL is the API root (default: DefaultBaseURL)
	BaseURL string

	// APIKey is sent as a bearer token
	APIKey string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// DownloadDir is where results are written (empty = temp dir)
	DownloadDir string
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// JobRequest describes a generation job. At least one of Prompt or Images
// must be set.
type JobRequest struct {
	Prompt        string
	Images        []string  // Local image files used as references
	Tier          string    // Quality tier (default: DefaultTier)
	BBoxCondition []float64 // Optional bounding box ratio [x, y, z]
}

// Job identifies a submitted generation.
type Job struct {
	TaskUUID        string   `json:"task_uuid"`
	SubscriptionKey string   `json:"subscription_key"`
	JobUUIDs        []string `json:"job_uuids"`
}

// JobStatus is the state of one sub-job.
type JobStatus struct {
	UUID   string `json:"uuid"`
	Status string `json:"status"`
}

// StatusResult summarizes a Status poll.
type StatusResult struct {
	Jobs   []JobStatus `json:"jobs"`
	Done   bool        `json:"done"`
	Failed bool        `json:"failed"`
}

// Result lists the files downloaded for a finished task.
type Result struct {
	TaskUUID string   `json:"task_uuid"`
	Model    string   `json:"model"`
	Files    []string `json:"files"`
}

// CreateJob submits a generation request.
func (c *Client) CreateJob(ctx context.Context, jr JobRequest) (*Job, error) {
	if jr.Prompt == "" && len(jr.Images) == 0 {
		return nil, errors.New("either a text prompt or at least one image is required")
	}
	if len(jr.BBoxCondition) != 0 && len(jr.BBoxCondition) != 3 {
		return nil, fmt.Errorf("bbox_condition must have 3 values, got %d", len(jr.BBoxCondition))
	}
	if jr.Tier == "" {
		jr.Tier = DefaultTier
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, img := range jr.Images {
		if err := addFile(mw, "images", img); err != nil {
			return nil, err
		}
	}
	if jr.Prompt != "" {
		_ = mw.WriteField("prompt", jr.Prompt)
	}
	_ = mw.WriteField("tier", jr.Tier)
	_ = mw.WriteField("mesh_mode", "Raw")
	if len(jr.BBoxCondition) == 3 {
		bbox, _ := json.Marshal(jr.BBoxCondition)
		_ = mw.WriteField("bbox_condition", string(bbox))
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var resp struct {
		UUID string `json:"uuid"`
		Jobs struct {
			UUIDs           []string `json:"uuids"`
			SubscriptionKey string   `json:"subscription_key"`
		} `json:"jobs"`
		Error string `json:"error"`
	}
	if err := c.post(ctx, "/v2/rodin", mw.FormDataContentType(), &body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("generation service rejected the job: %s", resp.Error)
	}
	if resp.Jobs.SubscriptionKey == "" {
		return nil, remote.NewParseError(service, "response has no subscription key", nil)
	}

	logging.Info("Generation job created",
		zap.String("task_uuid", resp.UUID),
		zap.Int("jobs", len(resp.Jobs.UUIDs)),
	)
	return &Job{
		TaskUUID:        resp.UUID,
		SubscriptionKey: resp.Jobs.SubscriptionKey,
		JobUUIDs:        resp.Jobs.UUIDs,
	}, nil
}

// Status polls the jobs behind subscriptionKey.
func (c *Client) Status(ctx context.Context, subscriptionKey string) (*StatusResult, error) {
	if subscriptionKey == "" {
		return nil, errors.New("subscription_key cannot be empty")
	}

	var resp struct {
		Jobs  []JobStatus `json:"jobs"`
		Error string      `json:"error"`
	}
	if err := c.postJSON(ctx, "/v2/status", map[string]string{"subscription_key": subscriptionKey}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("generation service status error: %s", resp.Error)
	}

	out := &StatusResult{Jobs: resp.Jobs, Done: len(resp.Jobs) > 0}
	for _, j := range resp.Jobs {
		if j.Status != StatusDone {
			out.Done = false
		}
		if j.Status == StatusFailed {
			out.Failed = true
		}
	}
	return out, nil
}

// Download fetches the results of a finished task. The first .glb file in
// the result list becomes Result.Model.
func (c *Client) Download(ctx context.Context, taskUUID string) (*Result, error) {
	if taskUUID == "" {
		return nil, errors.New("task_uuid cannot be empty")
	}

	var resp struct {
		List []struct {
			URL  string `json:"url"`
			Name string `json:"name"`
		} `json:"list"`
		Error string `json:"error"`
	}
	if err := c.postJSON(ctx, "/v2/download", map[string]string{"task_uuid": taskUUID}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("generation service download error: %s", resp.Error)
	}
	if len(resp.List) == 0 {
		return nil, fmt.Errorf("task '%s' has no downloadable results", taskUUID)
	}

	dir := c.taskDir(taskUUID)
	result := &Result{TaskUUID: taskUUID}
	for _, item := range resp.List {
		name := filepath.Base(item.Name)
		if name == "." || name == string(filepath.Separator) || name == "" {
			continue
		}
		dest := filepath.Join(dir, name)
		if err := c.downloadFile(ctx, item.URL, dest); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, dest)
		if result.Model == "" && strings.EqualFold(filepath.Ext(name), ".glb") {
			result.Model = dest
		}
	}
	if result.Model == "" {
		return nil, fmt.Errorf("task '%s' produced no .glb model", taskUUID)
	}
	return result, nil
}

func addFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to attach image %s: %w", path, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, p string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.post(ctx, p, "application/json", bytes.NewReader(data), out)
}

func (c *Client) post(ctx context.Context, p, contentType string, body io.Reader, out any) error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+p, body)
	if err != nil {
		return remote.NewNetworkError(service, "failed to create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", contentType)

	logging.Debug("Generation service request", zap.String("path", p))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return remote.NewNetworkError(service, "generation service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return remote.NewHTTPError(service, resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return remote.NewParseError(service, "failed to decode response", err)
	}
	return nil
}

func (c *Client) downloadFile(ctx context.Context, src, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return remote.NewNetworkError(service, "failed to create download request", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return remote.NewNetworkError(service, "download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return remote.NewHTTPError(service, resp.StatusCode, string(data))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return remote.NewNetworkError(service, "download interrupted", err)
	}
	return f.Close()
}

func (c *Client) taskDir(taskUUID string) string {
	base := c.DownloadDir
	if base == "" {
		base = filepath.Join(os.TempDir(), "scenebridge-generated")
	}
	return filepath.Join(base, filepath.Base(taskUUID))
}
