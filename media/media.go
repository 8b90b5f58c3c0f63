// Package media stores image bytes durably and serves them from stable
// content URLs. Provider-hosted results are fetched and re-hosted here so
// project images never point at short-lived provider URLs.
package media

import "context"

// Store is the durable object store for design images.
type Store interface {
	// Put stores data and returns a stable content URL for it.
	Put(ctx context.Context, data []byte, contentType string) (string, error)

	// Get returns the bytes behind url. Implementations resolve their own
	// content URLs locally and fetch foreign (provider-hosted) URLs over
	// HTTP.
	Get(ctx context.Context, url string) ([]byte, error)
}
