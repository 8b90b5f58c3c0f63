// Package provider defines the tool-calling language model interface the
// dispatcher talks to, with one implementation per vendor.
package provider

import (
	"context"

	"github.com/homecanvas/homecanvas/message"
)

// ToolUse is one tool invocation the model requested.
type ToolUse struct {
	ID   string
	Name string
	Args map[string]any
}

// GenerateRequest bundles inputs for a single model invocation.
type GenerateRequest struct {
	System   string
	Messages []message.Message
	// Tools carries named tool schemas in the form
	// {"name": ..., "description": ..., "input_schema": {...}}.
	Tools []map[string]any
}

// GenerateResponse captures the model reply: zero or more text blocks and
// zero or more tool-use blocks, in model order.
type GenerateResponse struct {
	TextBlocks []string
	ToolUses   []ToolUse
}

// Client is a tool-calling-capable language model.
type Client interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}
