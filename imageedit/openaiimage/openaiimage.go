// Package openaiimage submits image edits to OpenAI's gpt-image-1 model.
package openaiimage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	hcerrors "github.com/homecanvas/homecanvas/errors"
	"github.com/homecanvas/homecanvas/imageedit"
	"github.com/homecanvas/homecanvas/media"
)

// Config holds OpenAI image provider configuration
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// DefaultConfig returns default OpenAI image configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey: apiKey,
		Model:  string(openai.ImageModelGPTImage1),
	}
}

// Provider implements imageedit.Provider using the official OpenAI SDK
type Provider struct {
	config *Config
	client openai.Client
}

// New creates a new OpenAI image provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = string(openai.ImageModelGPTImage1)
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	return &Provider{
		config: config,
		client: openai.NewClient(options...),
	}
}

// Name implements imageedit.Provider
func (p *Provider) Name() string { return "openai" }

// Submit implements imageedit.Provider. gpt-image-1 edits take the source
// image as an upload, so the image at imageURL is fetched first.
func (p *Provider) Submit(ctx context.Context, prompt, imageURL string) (*imageedit.Result, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}

	data, err := media.Fetch(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source image: %w", err)
	}
	contentType := http.DetectContentType(data)

	res, err := p.client.Images.Edit(ctx, openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(data), fileName(contentType), contentType),
		},
		Prompt: prompt,
		Model:  openai.ImageModel(p.config.Model),
	})
	if err != nil {
		if detail, ok := moderationDetail(err); ok {
			return nil, &hcerrors.ContentPolicyError{Provider: p.Name(), Detail: detail}
		}
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(res.Data) == 0 || res.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("no image data in response")
	}
	decoded, err := base64.StdEncoding.DecodeString(res.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	return &imageedit.Result{Data: decoded, ContentType: "image/png"}, nil
}

// moderationDetail reports whether an SDK error is a safety refusal. OpenAI
// rejects these with code moderation_blocked or a safety-system message.
func moderationDetail(err error) (string, bool) {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return "", false
	}
	lower := strings.ToLower(apiErr.Code + " " + apiErr.Message)
	for _, marker := range []string{"moderation", "content_policy", "safety"} {
		if strings.Contains(lower, marker) {
			return apiErr.Message, true
		}
	}
	return "", false
}

func fileName(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "room.jpg"
	case "image/webp":
		return "room.webp"
	default:
		return "room.png"
	}
}
