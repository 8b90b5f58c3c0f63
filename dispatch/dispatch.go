// Package dispatch decides, per chat turn, whether the assistant presents
// design options, launches an image transformation, or simply converses. It
// sends the conversation to a tool-calling model with both capability schemas
// attached and interprets which capability, if any, the model invoked.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/homecanvas/homecanvas/design"
	hcerrors "github.com/homecanvas/homecanvas/errors"
	"github.com/homecanvas/homecanvas/message"
	"github.com/homecanvas/homecanvas/pkg/logging"
	"github.com/homecanvas/homecanvas/provider"
	"github.com/homecanvas/homecanvas/tokenizer"
)

// Tool names the model can invoke.
const (
	ToolProvideDesignOptions         = "provide_design_options"
	ToolGenerateDesignTransformation = "generate_design_transformation"
)

// Action is the capability the model chose for this turn.
type Action int

const (
	// ActionConversation means no tool was invoked; the reply is plain text.
	ActionConversation Action = iota
	// ActionProvideOptions means the model asked for curated design options.
	ActionProvideOptions
	// ActionGenerateTransformation means the model asked for an image edit.
	ActionGenerateTransformation
)

// Decision is the outcome of one dispatch call.
type Decision struct {
	Action Action

	// Reply is the model's text, joined with single spaces. For tool
	// actions it may be empty.
	Reply string

	// Analysis is the model's note accompanying provide_design_options.
	Analysis string

	// Request and StyleNotes carry the generate_design_transformation
	// arguments.
	Request    string
	StyleNotes string
}

// Config holds dispatcher configuration
type Config struct {
	// HistoryTokenBudget bounds how much prior conversation is sent to the
	// model. Oldest messages are dropped first.
	HistoryTokenBudget int
}

// DefaultConfig returns default dispatcher configuration
func DefaultConfig() *Config {
	return &Config{HistoryTokenBudget: 8000}
}

// Dispatcher routes chat turns through a tool-calling model.
type Dispatcher struct {
	config *Config
	client provider.Client
	tok    *tokenizer.Tokenizer
}

// New creates a new Dispatcher. A nil tokenizer disables history budgeting.
func New(client provider.Client, tok *tokenizer.Tokenizer, config *Config) *Dispatcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Dispatcher{
		config: config,
		client: client,
		tok:    tok,
	}
}

// Dispatch submits the conversation plus the new user message to the model
// and interprets the response. If the model invokes multiple tools, only the
// first tool-use block is honored. A failed call or an empty response returns
// *errors.ModelDispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, project *design.Project, history []message.Message, userMessage string) (*Decision, error) {
	msgs := d.trimHistory(history)
	msgs = append(msgs, message.New(message.RoleUser, userMessage))

	resp, err := d.client.Generate(ctx, &provider.GenerateRequest{
		System:   systemPrompt(project),
		Messages: msgs,
		Tools:    toolSchemas(),
	})
	if err != nil {
		return nil, &hcerrors.ModelDispatchError{Err: err}
	}

	reply := strings.TrimSpace(strings.Join(resp.TextBlocks, " "))

	if len(resp.ToolUses) > 0 {
		tu := resp.ToolUses[0]
		if len(resp.ToolUses) > 1 {
			logging.WithComponent("dispatch").Warn("model returned multiple tool uses, honoring first",
				"honored", tu.Name, "ignored", len(resp.ToolUses)-1)
		}
		switch tu.Name {
		case ToolProvideDesignOptions:
			return &Decision{
				Action:   ActionProvideOptions,
				Reply:    reply,
				Analysis: argString(tu.Args, "analysis"),
			}, nil
		case ToolGenerateDesignTransformation:
			request := argString(tu.Args, "request")
			if request == "" {
				// Unusable invocation, fall back to the literal message.
				request = userMessage
			}
			return &Decision{
				Action:     ActionGenerateTransformation,
				Reply:      reply,
				Request:    request,
				StyleNotes: argString(tu.Args, "style_notes"),
			}, nil
		default:
			logging.WithComponent("dispatch").Warn("model invoked unknown tool", "tool", tu.Name)
		}
	}

	if reply == "" {
		return nil, &hcerrors.ModelDispatchError{Err: fmt.Errorf("model returned no usable content")}
	}
	return &Decision{Action: ActionConversation, Reply: reply}, nil
}

// trimHistory drops oldest messages until the remainder fits the token
// budget. The most recent messages always survive.
func (d *Dispatcher) trimHistory(history []message.Message) []message.Message {
	if d.tok == nil || d.config.HistoryTokenBudget <= 0 {
		return message.Clone(history)
	}
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		total += d.tok.CountTokens(history[i].Content)
		if total > d.config.HistoryTokenBudget {
			break
		}
		start = i
	}
	return message.Clone(history[start:])
}

func systemPrompt(project *design.Project) string {
	roomType := project.RoomType
	if roomType == "" {
		roomType = "room"
	}
	style := project.StylePreference
	if style == "" {
		style = "not specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert interior design assistant helping with a %s design project.\n\n", roomType)
	fmt.Fprintf(&b, "Project details:\n- Room type: %s\n- Style preference: %s\n", roomType, style)
	if project.Name != "" {
		fmt.Fprintf(&b, "- Project name: %s\n", project.Name)
	}
	if project.Description != "" {
		fmt.Fprintf(&b, "- Description: %s\n", project.Description)
	}
	b.WriteString(`
You have two capabilities:
1. provide_design_options: use when the user wants suggestions, ideas, or is exploring directions for the space.
2. generate_design_transformation: use when the user asks for a concrete visual change to their room photo, such as "make the walls blue", "add a sofa", or "make it more modern".

If the user is asking a question or chatting, respond conversationally without invoking a tool. Provide helpful, specific interior design advice and be encouraging.`)
	return b.String()
}

func toolSchemas() []map[string]any {
	return []map[string]any{
		{
			"name":        ToolProvideDesignOptions,
			"description": "Present the user with curated design options for their space.",
			"input_schema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"analysis": map[string]any{
						"type":        "string",
						"description": "Brief analysis of what the user is looking for.",
					},
				},
				"required": []string{"analysis"},
			},
		},
		{
			"name":        ToolGenerateDesignTransformation,
			"description": "Apply a visual transformation to the user's current room image.",
			"input_schema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"request": map[string]any{
						"type":        "string",
						"description": "Specific description of the visual change to make.",
					},
					"style_notes": map[string]any{
						"type":        "string",
						"description": "Style guidance to preserve or apply during the edit.",
					},
				},
				"required": []string{"request"},
			},
		},
	}
}

func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}
