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

// SynthesizerConfig holds configuration for the synthesis client.
type SynthesizerConfig struct {
	BaseURL string
	Timeout time.Duration
	Voice   string
	Pace    float64
}

// SynthesizerClient talks to the speech synthesis sidecar over HTTP.
type SynthesizerClient struct {
	config     SynthesizerConfig
	httpClient *http.Client
}

// NewSynthesizerClient creates a synthesis client with the given config.
func NewSynthesizerClient(cfg SynthesizerConfig) *SynthesizerClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Voice == "" {
		cfg.Voice = "M2"
	}
	if cfg.Pace == 0 {
		cfg.Pace = 1.05
	}

	return &SynthesizerClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type synthesizeRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Pace  float64 `json:"pace"`
}

// Synthesize renders one sentence into a PCM waveform using the configured
// voice and pace.
func (c *SynthesizerClient) Synthesize(ctx context.Context, text string) (*Waveform, error) {
	if text == "" {
		return nil, fmt.Errorf("empty synthesis text")
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:  text,
		Voice: c.config.Voice,
		Pace:  c.config.Pace,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("synthesis service returned %d: %s", resp.StatusCode, msg)
	}

	var wf Waveform
	if err := json.NewDecoder(resp.Body).Decode(&wf); err != nil {
		return nil, fmt.Errorf("decode synthesis response: %w", err)
	}

	if len(wf.PCM) == 0 {
		return nil, fmt.Errorf("synthesis returned empty waveform")
	}
	if wf.SampleRate <= 0 {
		return nil, fmt.Errorf("synthesis returned invalid sample rate %d", wf.SampleRate)
	}

	return &wf, nil
}

// Health checks that the sidecar is up and its device is usable.
func (c *SynthesizerClient) Health(ctx context.Context) error {
	return checkHealth(ctx, c.httpClient, c.config.BaseURL)
}

// ReleaseDeviceMemory asks the sidecar to free cached device memory.
func (c *SynthesizerClient) ReleaseDeviceMemory(ctx context.Context) error {
	return releaseDeviceMemory(ctx, c.httpClient, c.config.BaseURL)
}

var _ Synthesizer = (*SynthesizerClient)(nil)
