package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/homecanvas/homecanvas/design"
	"github.com/homecanvas/homecanvas/message"
	"github.com/homecanvas/homecanvas/pkg/logging"
	"github.com/homecanvas/homecanvas/provider"
)

const optionCount = 4

// GenerateOptions asks the model for exactly four structured design options
// for the user's request. It never fails the turn: any model or parse failure
// yields a single generic fallback option.
func (d *Dispatcher) GenerateOptions(ctx context.Context, project *design.Project, analysis, request string) []design.Option {
	log := logging.WithComponent("dispatch")

	resp, err := d.client.Generate(ctx, &provider.GenerateRequest{
		System:   optionsPrompt(project, analysis),
		Messages: []message.Message{message.New(message.RoleUser, request)},
	})
	if err != nil {
		log.Warn("options call failed, using fallback option", "error", err)
		return []design.Option{design.FallbackOption(project.RoomType)}
	}

	text := strings.TrimSpace(strings.Join(resp.TextBlocks, " "))
	options, err := parseOptions(text)
	if err != nil {
		log.Warn("options parse failed, using fallback option", "error", err)
		return []design.Option{design.FallbackOption(project.RoomType)}
	}
	return options
}

func optionsPrompt(project *design.Project, analysis string) string {
	roomType := project.RoomType
	if roomType == "" {
		roomType = "room"
	}
	style := project.StylePreference
	if style == "" {
		style = "not specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert interior designer. Produce exactly %d design options for the user's %s.\n\n", optionCount, roomType)
	fmt.Fprintf(&b, "Style preference: %s\n", style)
	if analysis != "" {
		fmt.Fprintf(&b, "Analysis of the request: %s\n", analysis)
	}
	b.WriteString(`
Respond with only a JSON array of option objects, each shaped as:
{"name": "...", "description": "...", "key_changes": ["...", "..."]}

No prose before or after the JSON.`)
	return b.String()
}

// parseOptions decodes the model's options payload. It tries a strict decode
// first, then extracts a markdown-fenced block, then the outermost bracketed
// span; whatever parses wins.
func parseOptions(text string) ([]design.Option, error) {
	if text == "" {
		return nil, fmt.Errorf("empty options payload")
	}

	for _, candidate := range []string{text, unfence(text), bracketSpan(text)} {
		if candidate == "" {
			continue
		}
		var options []design.Option
		if err := json.Unmarshal([]byte(candidate), &options); err != nil {
			continue
		}
		if len(options) == 0 {
			continue
		}
		if len(options) > optionCount {
			options = options[:optionCount]
		}
		return options, nil
	}
	return nil, fmt.Errorf("no parseable options in payload")
}

// unfence strips a markdown code fence, with or without a language tag.
func unfence(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line.
		if tag := strings.TrimSpace(rest[:nl]); tag == "" || !strings.ContainsAny(tag, "[{") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// bracketSpan returns the outermost JSON-array span of text.
func bracketSpan(text string) string {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
