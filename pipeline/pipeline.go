// Package pipeline drives one design transformation to completion: augment
// the request with a perspective-preservation constraint, call the primary
// image-edit provider with a single content-policy fallback, then re-host the
// result in the media store.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	hcerrors "github.com/homecanvas/homecanvas/errors"
	"github.com/homecanvas/homecanvas/imageedit"
	"github.com/homecanvas/homecanvas/media"
	"github.com/homecanvas/homecanvas/pkg/logging"
	"github.com/homecanvas/homecanvas/pkg/telemetry"
)

// perspectiveConstraint is appended verbatim to every transformation request
// so providers change only what was asked for.
const perspectiveConstraint = "Keep the same room layout, camera angle, and perspective. Do not change any elements that were not mentioned in the request."

// Pipeline runs design transformations through a primary provider with one
// fallback on content-policy refusals.
type Pipeline struct {
	primary  imageedit.Provider
	fallback imageedit.Provider
	media    media.Store
}

// New creates a pipeline. fallback may be nil, in which case content-policy
// refusals from the primary are terminal.
func New(primary, fallback imageedit.Provider, mediaStore media.Store) *Pipeline {
	return &Pipeline{
		primary:  primary,
		fallback: fallback,
		media:    mediaStore,
	}
}

// AugmentPrompt wraps a free-text transformation request with style context
// and the perspective-preservation constraint.
func AugmentPrompt(request, roomType, style, styleNotes string) string {
	var b strings.Builder
	if roomType != "" {
		fmt.Fprintf(&b, "In this %s: ", roomType)
	}
	b.WriteString(request)
	if style != "" {
		fmt.Fprintf(&b, " Maintain the %s style throughout.", style)
	}
	if styleNotes != "" {
		b.WriteString(" " + styleNotes)
	}
	b.WriteString(" " + perspectiveConstraint)
	return b.String()
}

// Run executes one transformation and returns the stable URL of the edited
// image. A content-policy refusal from the primary is retried exactly once
// against the fallback with the same augmented prompt; any other provider
// failure propagates as *errors.GenerationError without retry.
func (p *Pipeline) Run(ctx context.Context, startingImage, request, roomType, style, styleNotes string) (string, error) {
	ctx, span := telemetry.Tracer("pipeline").Start(ctx, "pipeline.Run",
		trace.WithAttributes(attribute.String("provider.primary", p.primary.Name())))
	var runErr error
	defer func() { telemetry.End(span, runErr) }()

	log := logging.WithComponent("pipeline")
	prompt := AugmentPrompt(request, roomType, style, styleNotes)

	result, err := p.primary.Submit(ctx, prompt, startingImage)
	if err != nil {
		if !hcerrors.IsContentPolicy(err) {
			runErr = &hcerrors.GenerationError{Provider: p.primary.Name(), Err: err}
			return "", runErr
		}
		if p.fallback == nil {
			runErr = err
			return "", runErr
		}
		log.Warn("primary provider refused on content policy, trying fallback",
			"primary", p.primary.Name(), "fallback", p.fallback.Name())
		span.AddEvent("content_policy_fallback")

		result, err = p.fallback.Submit(ctx, prompt, startingImage)
		if err != nil {
			if hcerrors.IsContentPolicy(err) {
				runErr = err
			} else {
				runErr = &hcerrors.GenerationError{Provider: p.fallback.Name(), Err: err}
			}
			return "", runErr
		}
	}

	url, err := p.commit(ctx, result)
	if err != nil {
		runErr = &hcerrors.GenerationError{Provider: "media", Err: err}
		return "", runErr
	}
	log.Info("transformation complete", "image_url", url)
	return url, nil
}

// commit re-hosts the provider's result and returns its stable URL.
func (p *Pipeline) commit(ctx context.Context, result *imageedit.Result) (string, error) {
	data := result.Data
	if data == nil {
		fetched, err := p.media.Get(ctx, result.URL)
		if err != nil {
			return "", fmt.Errorf("failed to fetch provider image: %w", err)
		}
		data = fetched
	}
	contentType := result.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	url, err := p.media.Put(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return url, nil
}
