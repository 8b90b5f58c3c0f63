package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/homecanvas/homecanvas/message"
	"github.com/homecanvas/homecanvas/provider"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   1024,
		Temperature: 0.7,
	}
}

// Provider implements the provider.Client interface for Google Gemini
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a new Gemini provider using the official SDK.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil || config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{config: config, client: client}, nil
}

// Generate implements provider.Client
func (p *Provider) Generate(ctx context.Context, req *provider.GenerateRequest) (*provider.GenerateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("generate request requires at least one message")
	}

	model := p.client.GenerativeModel(p.config.Model)
	model.SetMaxOutputTokens(p.config.MaxTokens)
	if p.config.Temperature > 0 {
		model.SetTemperature(p.config.Temperature)
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if len(req.Tools) > 0 {
		decls, err := toFunctionDeclarations(req.Tools)
		if err != nil {
			return nil, err
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	chat := model.StartChat()
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		role := "user"
		if msg.Role == message.RoleAssistant {
			role = "model"
		}
		chat.History = append(chat.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	last := req.Messages[len(req.Messages)-1]
	result, err := chat.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates in Gemini response")
	}

	resp := &provider.GenerateResponse{}
	for _, part := range result.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			resp.TextBlocks = append(resp.TextBlocks, string(v))
		case genai.FunctionCall:
			resp.ToolUses = append(resp.ToolUses, provider.ToolUse{
				Name: v.Name,
				Args: v.Args,
			})
		}
	}
	return resp, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// toFunctionDeclarations converts the generic tool schemas into Gemini
// function declarations. Only string and array-of-string parameters appear
// in this service's schemas.
func toFunctionDeclarations(tools []map[string]any) ([]*genai.FunctionDeclaration, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		name, _ := tool["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("tool schema missing name")
		}
		decl := &genai.FunctionDeclaration{Name: name}
		decl.Description, _ = tool["description"].(string)

		schema, _ := tool["input_schema"].(map[string]any)
		if schema == nil {
			decls = append(decls, decl)
			continue
		}

		params := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
		if props, ok := schema["properties"].(map[string]any); ok {
			for propName, raw := range props {
				prop, _ := raw.(map[string]any)
				desc, _ := prop["description"].(string)
				typ, _ := prop["type"].(string)
				converted := &genai.Schema{Description: desc}
				switch typ {
				case "array":
					converted.Type = genai.TypeArray
					converted.Items = &genai.Schema{Type: genai.TypeString}
				default:
					converted.Type = genai.TypeString
				}
				params.Properties[propName] = converted
			}
		}
		if required, ok := schema["required"].([]string); ok {
			params.Required = required
		} else if rawRequired, ok := schema["required"].([]any); ok {
			for _, r := range rawRequired {
				if s, ok := r.(string); ok {
					params.Required = append(params.Required, s)
				}
			}
		}
		decl.Parameters = params
		decls = append(decls, decl)
	}
	return decls, nil
}
