// Package imageedit abstracts generative image-edit providers behind a
// single synchronous call. Adapters classify provider refusals so the
// pipeline can distinguish content-policy rejections (retryable on the
// fallback provider) from everything else (terminal).
package imageedit

import "context"

// Result is a completed edit. Exactly one of URL or Data is set: URL points
// at a provider-hosted image that must be fetched before re-hosting, Data is
// an inline payload.
type Result struct {
	URL         string
	Data        []byte
	ContentType string
}

// Provider performs one image edit. Errors are classified: content-policy
// refusals surface as *errors.ContentPolicyError, anything else as a plain
// error for the caller to wrap.
type Provider interface {
	// Name identifies the provider in errors and logs.
	Name() string

	// Submit applies prompt to the image at imageURL and returns the
	// edited image.
	Submit(ctx context.Context, prompt, imageURL string) (*Result, error)
}
