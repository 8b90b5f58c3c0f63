package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/homecanvas/homecanvas/design"
	hcerrors "github.com/homecanvas/homecanvas/errors"
	"github.com/homecanvas/homecanvas/message"
	"github.com/homecanvas/homecanvas/provider"
	"github.com/homecanvas/homecanvas/tokenizer"
)

// mockClient returns canned responses and records requests
type mockClient struct {
	responses []*provider.GenerateResponse
	err       error
	requests  []*provider.GenerateRequest
}

func (m *mockClient) Generate(ctx context.Context, req *provider.GenerateRequest) (*provider.GenerateResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

func testProject() *design.Project {
	return &design.Project{
		ID:              "proj-1",
		UserID:          "user-1",
		Name:            "My Living Room",
		RoomType:        "living_room",
		StylePreference: "modern",
		CurrentImageURL: "https://cdn.example.com/current.png",
	}
}

func TestDispatchConversation(t *testing.T) {
	client := &mockClient{responses: []*provider.GenerateResponse{
		{TextBlocks: []string{"Warm neutrals work well", "in a modern living room."}},
	}}
	d := New(client, nil, nil)

	decision, err := d.Dispatch(context.Background(), testProject(), nil, "What color would work well here?")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if decision.Action != ActionConversation {
		t.Errorf("expected ActionConversation, got %v", decision.Action)
	}
	if decision.Reply != "Warm neutrals work well in a modern living room." {
		t.Errorf("text blocks not joined with single space: %q", decision.Reply)
	}
}

func TestDispatchTransformation(t *testing.T) {
	client := &mockClient{responses: []*provider.GenerateResponse{
		{
			TextBlocks: []string{"On it!"},
			ToolUses: []provider.ToolUse{
				{ID: "tu-1", Name: ToolGenerateDesignTransformation, Args: map[string]any{
					"request":     "Make the walls blue",
					"style_notes": "keep modern style",
				}},
			},
		},
	}}
	d := New(client, nil, nil)

	decision, err := d.Dispatch(context.Background(), testProject(), nil, "Make the walls blue")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if decision.Action != ActionGenerateTransformation {
		t.Fatalf("expected ActionGenerateTransformation, got %v", decision.Action)
	}
	if decision.Request != "Make the walls blue" {
		t.Errorf("unexpected request: %q", decision.Request)
	}
	if decision.StyleNotes != "keep modern style" {
		t.Errorf("unexpected style notes: %q", decision.StyleNotes)
	}
}

func TestDispatchFirstToolUseWins(t *testing.T) {
	client := &mockClient{responses: []*provider.GenerateResponse{
		{ToolUses: []provider.ToolUse{
			{Name: ToolProvideDesignOptions, Args: map[string]any{"analysis": "wants ideas"}},
			{Name: ToolGenerateDesignTransformation, Args: map[string]any{"request": "paint it"}},
		}},
	}}
	d := New(client, nil, nil)

	decision, err := d.Dispatch(context.Background(), testProject(), nil, "ideas?")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if decision.Action != ActionProvideOptions {
		t.Errorf("expected first tool use to win, got %v", decision.Action)
	}
	if decision.Analysis != "wants ideas" {
		t.Errorf("unexpected analysis: %q", decision.Analysis)
	}
}

func TestDispatchModelError(t *testing.T) {
	client := &mockClient{err: errors.New("connection refused")}
	d := New(client, nil, nil)

	_, err := d.Dispatch(context.Background(), testProject(), nil, "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	var mdErr *hcerrors.ModelDispatchError
	if !errors.As(err, &mdErr) {
		t.Fatalf("expected ModelDispatchError, got %T", err)
	}
}

func TestDispatchEmptyResponse(t *testing.T) {
	client := &mockClient{responses: []*provider.GenerateResponse{{}}}
	d := New(client, nil, nil)

	_, err := d.Dispatch(context.Background(), testProject(), nil, "hello")
	var mdErr *hcerrors.ModelDispatchError
	if !errors.As(err, &mdErr) {
		t.Fatalf("expected ModelDispatchError for empty response, got %v", err)
	}
}

func TestDispatchEmptyTransformationRequestFallsBack(t *testing.T) {
	client := &mockClient{responses: []*provider.GenerateResponse{
		{ToolUses: []provider.ToolUse{
			{Name: ToolGenerateDesignTransformation, Args: map[string]any{}},
		}},
	}}
	d := New(client, nil, nil)

	decision, err := d.Dispatch(context.Background(), testProject(), nil, "make it cozy")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if decision.Request != "make it cozy" {
		t.Errorf("expected literal message fallback, got %q", decision.Request)
	}
}

func TestDispatchSendsToolSchemas(t *testing.T) {
	client := &mockClient{responses: []*provider.GenerateResponse{
		{TextBlocks: []string{"ok"}},
	}}
	d := New(client, nil, nil)

	if _, err := d.Dispatch(context.Background(), testProject(), nil, "hi"); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	req := client.requests[0]
	if len(req.Tools) != 2 {
		t.Fatalf("expected 2 tool schemas, got %d", len(req.Tools))
	}
	names := map[string]bool{}
	for _, tool := range req.Tools {
		name, _ := tool["name"].(string)
		names[name] = true
	}
	if !names[ToolProvideDesignOptions] || !names[ToolGenerateDesignTransformation] {
		t.Errorf("missing tool schema, got %v", names)
	}
	if !strings.Contains(req.System, "living_room") {
		t.Errorf("system prompt missing room type: %q", req.System)
	}
}

func TestTrimHistory(t *testing.T) {
	tok, err := tokenizer.Default()
	if err != nil {
		t.Skipf("tokenizer unavailable: %v", err)
	}

	var history []message.Message
	for i := 0; i < 50; i++ {
		history = append(history, message.New(message.RoleUser,
			fmt.Sprintf("message %d with a reasonable amount of content about interior design", i)))
	}

	d := New(&mockClient{}, tok, &Config{HistoryTokenBudget: 100})
	trimmed := d.trimHistory(history)
	if len(trimmed) == 0 {
		t.Fatal("expected at least the newest message to survive")
	}
	if len(trimmed) >= len(history) {
		t.Errorf("expected trimming, got %d of %d", len(trimmed), len(history))
	}
	// Newest messages survive.
	if trimmed[len(trimmed)-1].Content != history[len(history)-1].Content {
		t.Error("newest message missing from trimmed history")
	}
}
