// Package backend is the REST client for the camera backend. It covers the
// camera-preview surface: device enumeration, preview start/stop, and the
// backend-coordinated capture-all call.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/walnutpair/previewd/internal/core/device"
)

// ErrUnreachable marks transport-level failures: the backend did not produce
// an HTTP response at all. Callers use it to distinguish total failure from
// an error the backend reported.
var ErrUnreachable = errors.New("backend unreachable")

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend: HTTP %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend: HTTP %d", e.StatusCode)
}

// IsNotFound reports whether err is a backend 404, e.g. an unknown
// camera_unique_id on start/stop.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// StartStopResult is the backend's response to preview start/stop.
type StartStopResult struct {
	Success        bool   `json:"success"`
	CameraUniqueID string `json:"camera_unique_id"`
	CameraIndex    int    `json:"camera_index"`
}

// CaptureResult is the backend's report for a capture-all run. A response
// with CapturedCount < TotalCameras is still a structurally successful call;
// Errors carries the per-device failures in backend order.
type CaptureResult struct {
	Success       bool              `json:"success"`
	CapturedCount int               `json:"captured_count"`
	TotalCameras  int               `json:"total_cameras"`
	SavedPaths    map[string]string `json:"saved_paths,omitempty"`
	Errors        []string          `json:"errors,omitempty"`
}

// Client talks to the camera backend.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *slog.Logger
}

// NewClient creates a backend client for the given base URL
// (e.g. "http://127.0.0.1:8000").
func NewClient(baseURL string, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListCameras enumerates available cameras with their stable identifiers.
func (c *Client) ListCameras(ctx context.Context) ([]device.Camera, error) {
	var cams []device.Camera
	if err := c.doJSON(ctx, http.MethodGet, "/camera-preview/cameras", nil, &cams); err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	return cams, nil
}

type startRequest struct {
	CameraUniqueID string `json:"camera_unique_id"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

type stopRequest struct {
	CameraUniqueID string `json:"camera_unique_id"`
}

// StartPreview asks the backend to open the camera and begin producing
// frames on the stream socket.
func (c *Client) StartPreview(ctx context.Context, uniqueID string, width, height int) (StartStopResult, error) {
	var res StartStopResult
	body := startRequest{CameraUniqueID: uniqueID, Width: width, Height: height}
	if err := c.doJSON(ctx, http.MethodPost, "/camera-preview/start", body, &res); err != nil {
		return StartStopResult{}, fmt.Errorf("start preview %s: %w", uniqueID, err)
	}
	if !res.Success {
		return res, fmt.Errorf("start preview %s: backend reported failure", uniqueID)
	}
	return res, nil
}

// StopPreview asks the backend to stop producing frames and release the
// camera.
func (c *Client) StopPreview(ctx context.Context, uniqueID string) (StartStopResult, error) {
	var res StartStopResult
	if err := c.doJSON(ctx, http.MethodPost, "/camera-preview/stop", stopRequest{CameraUniqueID: uniqueID}, &res); err != nil {
		return StartStopResult{}, fmt.Errorf("stop preview %s: %w", uniqueID, err)
	}
	return res, nil
}

// CaptureAll triggers a synchronized capture across every camera the backend
// knows about. Cross-device timing lives entirely behind this call.
func (c *Client) CaptureAll(ctx context.Context) (CaptureResult, error) {
	var res CaptureResult
	if err := c.doJSON(ctx, http.MethodPost, "/camera-preview/capture-all", nil, &res); err != nil {
		return CaptureResult{}, fmt.Errorf("capture all: %w", err)
	}
	return res, nil
}

// doJSON issues one request and decodes the JSON response into out (when out
// is non-nil). Non-2xx responses become *APIError; failures to reach the
// backend wrap ErrUnreachable.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("backend request", "method", method, "path", path)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Detail: readDetail(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readDetail extracts the backend's error message. The backend wraps errors
// as {"detail": "..."}; fall back to the raw body when it doesn't.
func readDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var wrapped struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Detail != "" {
		return wrapped.Detail
	}
	return strings.TrimSpace(string(data))
}
