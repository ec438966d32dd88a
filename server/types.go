package server

// Wire types for the OpenAI-compatible surface.
type (
	// ChatMessage is a single role/content pair in a conversation.
	ChatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	// ChatCompletionRequest is the body accepted by POST /v1/chat/completions.
	// Temperature and MaxTokens are accepted for compatibility; the stub
	// generator ignores them.
	ChatCompletionRequest struct {
		Model       string        `json:"model"`
		Messages    []ChatMessage `json:"messages"`
		Temperature *float64      `json:"temperature,omitempty"`
		MaxTokens   *int          `json:"max_tokens,omitempty"`
	}

	// Usage reports prompt/completion counters. The stub counts characters,
	// not real tokens.
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	}

	// ChatChoice is a single completion alternative.
	ChatChoice struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	}

	// ChatCompletionResponse is the body returned by POST /v1/chat/completions.
	ChatCompletionResponse struct {
		ID      string       `json:"id"`
		Object  string       `json:"object"`
		Created int64        `json:"created"`
		Model   string       `json:"model"`
		Choices []ChatChoice `json:"choices"`
		Usage   Usage        `json:"usage"`
	}

	// ModelInfo describes one entry in the model listing.
	ModelInfo struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Created int64  `json:"created"`
		OwnedBy string `json:"owned_by"`
	}

	// ModelList is the body returned by GET /v1/models.
	ModelList struct {
		Object string      `json:"object"`
		Data   []ModelInfo `json:"data"`
	}

	// ErrorDetail carries the message and machine-readable type of an error.
	ErrorDetail struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}

	// ErrorResponse is the OpenAI-style error envelope.
	ErrorResponse struct {
		Error ErrorDetail `json:"error"`
	}
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
)

// applyDefaults fills in the documented defaults for absent generation
// parameters. The values are never consumed by the generator; normalizing
// them keeps the request echoable and the contract explicit.
func (r *ChatCompletionRequest) applyDefaults() {
	if r.Temperature == nil {
		v := defaultTemperature
		r.Temperature = &v
	}
	if r.MaxTokens == nil {
		v := defaultMaxTokens
		r.MaxTokens = &v
	}
}
