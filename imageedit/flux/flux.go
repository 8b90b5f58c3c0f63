// Package flux submits image edits to the fal.ai Flux Kontext endpoint.
package flux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	hcerrors "github.com/homecanvas/homecanvas/errors"
	"github.com/homecanvas/homecanvas/imageedit"
)

const defaultEndpoint = "https://fal.run/fal-ai/flux-pro/kontext"

// Config holds Flux provider configuration
type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// DefaultConfig returns default Flux configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:   apiKey,
		Endpoint: defaultEndpoint,
		Timeout:  120 * time.Second,
	}
}

// Provider implements imageedit.Provider against the fal.ai REST API
type Provider struct {
	config *Config
	client *http.Client
}

// New creates a new Flux provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	return &Provider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Name implements imageedit.Provider
func (p *Provider) Name() string { return "flux" }

// fluxRequest represents a Flux Kontext edit request
type fluxRequest struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"image_url"`
}

// fluxResponse represents a Flux Kontext edit response
type fluxResponse struct {
	Images []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"images"`
}

// fluxError represents a fal.ai error payload
type fluxError struct {
	Detail json.RawMessage `json:"detail"`
}

// Submit implements imageedit.Provider
func (p *Provider) Submit(ctx context.Context, prompt, imageURL string) (*imageedit.Result, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("flux API key not configured")
	}

	reqBody, err := json.Marshal(fluxRequest{Prompt: prompt, ImageURL: imageURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+p.config.APIKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		if detail, ok := contentPolicyDetail(httpResp.StatusCode, respBody); ok {
			return nil, &hcerrors.ContentPolicyError{Provider: p.Name(), Detail: detail}
		}
		return nil, fmt.Errorf("flux API error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp fluxResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("no images in response")
	}
	return &imageedit.Result{URL: resp.Images[0].URL, ContentType: resp.Images[0].ContentType}, nil
}

// contentPolicyDetail reports whether an error payload is a safety refusal.
// fal.ai signals these as 422 responses whose detail mentions the content
// policy checker.
func contentPolicyDetail(status int, body []byte) (string, bool) {
	if status != http.StatusUnprocessableEntity && status != http.StatusBadRequest {
		return "", false
	}
	var payload fluxError
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	detail := string(payload.Detail)
	lower := strings.ToLower(detail)
	for _, marker := range []string{"content_policy", "content policy", "nsfw", "safety"} {
		if strings.Contains(lower, marker) {
			return detail, true
		}
	}
	return "", false
}
