package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RecognizerConfig holds configuration for the recognition client.
type RecognizerConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RecognizerClient talks to the layout recognition sidecar over HTTP.
type RecognizerClient struct {
	config     RecognizerConfig
	httpClient *http.Client
}

// NewRecognizerClient creates a recognition client with the given config.
func NewRecognizerClient(cfg RecognizerConfig) *RecognizerClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &RecognizerClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type recognizeRequest struct {
	Image []byte `json:"image"`
}

// RecognizePage sends a rendered page image to the sidecar and returns the
// recognized layout.
func (c *RecognizerClient) RecognizePage(ctx context.Context, image []byte) (*PageLayout, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty page image")
	}

	body, err := json.Marshal(recognizeRequest{Image: image})
	if err != nil {
		return nil, fmt.Errorf("marshal recognize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/recognize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognition request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("recognition service returned %d: %s", resp.StatusCode, msg)
	}

	var layout PageLayout
	if err := json.NewDecoder(resp.Body).Decode(&layout); err != nil {
		return nil, fmt.Errorf("decode recognition response: %w", err)
	}

	return &layout, nil
}

// Health checks that the sidecar is up and its device is usable.
func (c *RecognizerClient) Health(ctx context.Context) error {
	return checkHealth(ctx, c.httpClient, c.config.BaseURL)
}

// ReleaseDeviceMemory asks the sidecar to free cached device memory.
func (c *RecognizerClient) ReleaseDeviceMemory(ctx context.Context) error {
	return releaseDeviceMemory(ctx, c.httpClient, c.config.BaseURL)
}

var _ Recognizer = (*RecognizerClient)(nil)

// checkHealth probes the sidecar's health endpoint. The sidecar only
// reports healthy after its own device self-check passes.
func checkHealth(ctx context.Context, client *http.Client, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}

	return nil
}

// releaseDeviceMemory posts to the sidecar's reclaim endpoint. Best effort;
// callers log failures rather than aborting work.
func releaseDeviceMemory(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/reclaim", nil)
	if err != nil {
		return fmt.Errorf("create reclaim request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reclaim request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("reclaim returned %d", resp.StatusCode)
	}

	return nil
}
