package flux

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	hcerrors "github.com/homecanvas/homecanvas/errors"
)

func newTestProvider(url string) *Provider {
	cfg := DefaultConfig("test-key")
	cfg.Endpoint = url
	return New(cfg)
}

func TestSubmit(t *testing.T) {
	var gotAuth string
	var gotBody fluxRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]string{
				{"url": "https://fal.media/files/out.png", "content_type": "image/png"},
			},
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	res, err := p.Submit(context.Background(), "add a sofa", "https://cdn.example.com/room.png")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.URL != "https://fal.media/files/out.png" {
		t.Errorf("expected provider URL, got %q", res.URL)
	}
	if gotAuth != "Key test-key" {
		t.Errorf("expected Key auth header, got %q", gotAuth)
	}
	if gotBody.Prompt != "add a sofa" || gotBody.ImageURL != "https://cdn.example.com/room.png" {
		t.Errorf("unexpected request body: %+v", gotBody)
	}
}

func TestSubmitContentPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"detail": []map[string]string{
				{"type": "content_policy_violation", "msg": "prompt flagged by content checker"},
			},
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.Submit(context.Background(), "something", "https://cdn.example.com/room.png")
	if err == nil {
		t.Fatal("expected error")
	}

	var cpErr *hcerrors.ContentPolicyError
	if !errors.As(err, &cpErr) {
		t.Fatalf("expected ContentPolicyError, got %T: %v", err, err)
	}
	if cpErr.Provider != "flux" {
		t.Errorf("expected provider flux, got %q", cpErr.Provider)
	}
}

func TestSubmitServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.Submit(context.Background(), "prompt", "https://cdn.example.com/room.png")
	if err == nil {
		t.Fatal("expected error")
	}
	var cpErr *hcerrors.ContentPolicyError
	if errors.As(err, &cpErr) {
		t.Error("server errors should not classify as content policy")
	}
}

func TestSubmitEmptyImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"images": []any{}})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	if _, err := p.Submit(context.Background(), "prompt", "https://cdn.example.com/room.png"); err == nil {
		t.Fatal("expected error for empty images")
	}
}

func TestSubmitMissingKey(t *testing.T) {
	p := New(&Config{})
	if _, err := p.Submit(context.Background(), "prompt", "url"); err == nil {
		t.Fatal("expected error without API key")
	}
}
