package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found or is
	// not owned by the caller
	ErrNotFound = errors.New("resource not found")

	// ErrInsufficientCredits indicates the user has no credits left for a
	// paid operation
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates that the operation is not authorized
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")
)

// ContentPolicyError reports that an image-edit provider refused a prompt on
// content-policy grounds. The pipeline retries these exactly once against the
// fallback provider; a policy refusal from both providers is terminal.
type ContentPolicyError struct {
	Provider string
	Detail   string
}

func (e *ContentPolicyError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("provider %s rejected the request for content policy reasons", e.Provider)
	}
	return fmt.Sprintf("provider %s rejected the request for content policy reasons: %s", e.Provider, e.Detail)
}

// GenerationError wraps any non-policy failure from an image-edit provider or
// the media store. It is never retried.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (provider %s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ModelDispatchError reports that the language-model call failed or returned
// no usable content. The enclosing turn degrades to a generic apology; the
// wrapped cause is for logs only.
type ModelDispatchError struct {
	Err error
}

func (e *ModelDispatchError) Error() string {
	return fmt.Sprintf("model dispatch failed: %v", e.Err)
}

func (e *ModelDispatchError) Unwrap() error { return e.Err }

// IsContentPolicy reports whether err is (or wraps) a ContentPolicyError.
func IsContentPolicy(err error) bool {
	var cpe *ContentPolicyError
	return errors.As(err, &cpe)
}
