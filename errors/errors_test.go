package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestContentPolicyErrorMessage(t *testing.T) {
	err := &ContentPolicyError{Provider: "flux"}
	if err.Error() != "provider flux rejected the request for content policy reasons" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	err = &ContentPolicyError{Provider: "flux", Detail: "nsfw"}
	if err.Error() != "provider flux rejected the request for content policy reasons: nsfw" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestIsContentPolicy(t *testing.T) {
	base := &ContentPolicyError{Provider: "flux"}
	wrapped := fmt.Errorf("pipeline: %w", base)

	if !IsContentPolicy(base) {
		t.Errorf("expected direct ContentPolicyError to match")
	}
	if !IsContentPolicy(wrapped) {
		t.Errorf("expected wrapped ContentPolicyError to match")
	}
	if IsContentPolicy(errors.New("boom")) {
		t.Errorf("plain error should not match")
	}
	if IsContentPolicy(&GenerationError{Provider: "flux", Err: errors.New("boom")}) {
		t.Errorf("GenerationError should not match")
	}
}

func TestGenerationErrorUnwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := &GenerationError{Provider: "gpt-image", Err: cause}
	if !errors.Is(err, cause) {
		t.Errorf("expected GenerationError to unwrap to its cause")
	}
}

func TestModelDispatchErrorUnwrap(t *testing.T) {
	cause := errors.New("api down")
	err := &ModelDispatchError{Err: cause}
	if !errors.Is(err, cause) {
		t.Errorf("expected ModelDispatchError to unwrap to its cause")
	}
}
