package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/izukaai/izuka/message"
	"google.golang.org/api/option"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// Provider implements the LLMClient interface for Google Gemini
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a new Gemini provider using the official SDK
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{
		config: config,
		client: client,
	}, nil
}

// Generate implements agent.LLMClient
func (p *Provider) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	model := p.client.GenerativeModel(p.config.Model)
	model.SetTemperature(p.config.Temperature)
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(p.config.MaxTokens))
	}

	systemText, contents := convertMessages(messages)
	if systemText != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemText)},
		}
	}

	if len(tools) > 0 {
		declarations, err := functionDeclarations(tools)
		if err != nil {
			return nil, err
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	if len(contents) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	cs := model.StartChat()
	if len(contents) > 1 {
		cs.History = contents[:len(contents)-1]
	}

	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return nil, fmt.Errorf("no content in candidate")
	}

	var responseText string
	var toolCalls []message.ToolCall
	for _, part := range content.Parts {
		switch v := part.(type) {
		case genai.Text:
			responseText += string(v)
		case genai.FunctionCall:
			// Gemini does not assign call IDs; synthesize them so tool
			// responses correlate downstream.
			toolCalls = append(toolCalls, message.ToolCall{
				ID:   "call-" + uuid.NewString(),
				Name: v.Name,
				Args: v.Args,
			})
		}
	}

	responseMsg := message.NewMessage(message.RoleAssistant, responseText)
	if len(toolCalls) > 0 {
		responseMsg.ToolCalls = toolCalls
	}
	return responseMsg, nil
}

// convertMessages maps the transcript onto Gemini chat contents. System
// messages are lifted into the system instruction; tool responses become
// function response parts correlated back to the call name.
func convertMessages(messages []*message.Message) (string, []*genai.Content) {
	systemText := ""
	contents := make([]*genai.Content, 0, len(messages))
	callNames := make(map[string]string)

	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			if systemText != "" {
				systemText += "\n"
			}
			systemText += msg.Content
		case message.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		case message.RoleAssistant:
			parts := make([]genai.Part, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				callNames[tc.ID] = tc.Name
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			if len(parts) == 0 {
				parts = append(parts, genai.Text(""))
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case message.RoleTool:
			name := callNames[msg.ToolID]
			if name == "" {
				name = msg.ToolID
			}
			part := genai.FunctionResponse{
				Name:     name,
				Response: toolResponsePayload(msg.Content),
			}
			// Parallel calls answer in one user turn.
			if n := len(contents); n > 0 && contents[n-1].Role == "user" && hasFunctionResponse(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
			} else {
				contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{part}})
			}
		}
	}

	return systemText, contents
}

func hasFunctionResponse(content *genai.Content) bool {
	for _, part := range content.Parts {
		if _, ok := part.(genai.FunctionResponse); ok {
			return true
		}
	}
	return false
}

// toolResponsePayload keeps JSON object outputs intact and wraps everything
// else under a result key.
func toolResponsePayload(output string) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal([]byte(output), &payload); err == nil && payload != nil {
		return payload
	}
	return map[string]any{"result": output}
}

func functionDeclarations(tools []map[string]any) ([]*genai.FunctionDeclaration, error) {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		fn, ok := tool["function"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tool schema missing function block")
		}
		name, _ := fn["name"].(string)
		description, _ := fn["description"].(string)

		decl := &genai.FunctionDeclaration{
			Name:        name,
			Description: description,
		}
		if params, ok := fn["parameters"].(map[string]any); ok {
			decl.Parameters = schemaFromMap(params)
		}
		declarations = append(declarations, decl)
	}
	return declarations, nil
}

func schemaFromMap(params map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: schemaType(params["type"])}

	if description, ok := params["description"].(string); ok {
		schema.Description = description
	}
	if enum, ok := params["enum"].([]string); ok {
		schema.Enum = enum
	}
	if properties, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(properties))
		for key, value := range properties {
			if prop, ok := value.(map[string]any); ok {
				schema.Properties[key] = schemaFromMap(prop)
			}
		}
	}
	if required, ok := params["required"].([]string); ok {
		schema.Required = required
	}
	if items, ok := params["items"].(map[string]any); ok {
		schema.Items = schemaFromMap(items)
	}

	return schema
}

func schemaType(value any) genai.Type {
	name, _ := value.(string)
	switch name {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// SetTemperature updates the temperature setting
func (p *Provider) SetTemperature(temp float64) {
	p.config.Temperature = float32(temp)
}

// SetMaxTokens updates the max tokens setting
func (p *Provider) SetMaxTokens(max int64) {
	p.config.MaxTokens = int(max)
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.config.Model = model
}

// Close releases the underlying API client.
func (p *Provider) Close() error {
	return p.client.Close()
}
