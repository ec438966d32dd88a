package provider

import (
	"context"
	"fmt"

	"github.com/izukaai/izuka/agent"
	"github.com/izukaai/izuka/contrib/provider/claude"
	"github.com/izukaai/izuka/contrib/provider/gemini"
	"github.com/izukaai/izuka/contrib/provider/openai"
	"github.com/izukaai/izuka/message"
)

// Backend names accepted by New.
const (
	BackendOpenAI = "openai"
	BackendClaude = "claude"
	BackendGemini = "gemini"
)

// Provider is the minimal generation surface shared by every LLM backend.
type Provider interface {
	Generate(ctx context.Context, messages []*message.Message, tools []map[string]interface{}) (*message.Message, error)
}

// Every backend satisfies the full agent client contract.
var (
	_ agent.LLMClient = (*openai.Provider)(nil)
	_ agent.LLMClient = (*claude.Provider)(nil)
	_ agent.LLMClient = (*gemini.Provider)(nil)
)

// Options configures the OpenAI-compatible backend selected by
// LLM_ENDPOINT/LLM_TOKEN.
type Options struct {
	Endpoint    string
	Token       string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// NewOpenAICompatible builds the client for any endpoint speaking the OpenAI
// chat completion protocol, including this repository's own facade.
func NewOpenAICompatible(opts Options) agent.LLMClient {
	cfg := openai.DefaultConfig().
		WithAPIKey(opts.Token).
		WithBaseURL(opts.Endpoint)
	if opts.Model != "" {
		cfg.WithModel(opts.Model)
	}
	if opts.MaxTokens > 0 {
		cfg.MaxTokens = opts.MaxTokens
	}
	cfg.Temperature = opts.Temperature
	return openai.New(cfg)
}

// DefaultModel is the model used for a backend when none is configured.
func DefaultModel(backend string) string {
	switch backend {
	case BackendClaude:
		return claude.DefaultConfig("", "").Model
	case BackendGemini:
		return gemini.DefaultConfig("").Model
	default:
		return "gpt-4o"
	}
}

// New builds the named backend. The openai backend honours Endpoint for any
// OpenAI-compatible server; claude treats it as a base URL override and
// gemini ignores it.
func New(ctx context.Context, backend string, opts Options) (agent.LLMClient, error) {
	switch backend {
	case BackendOpenAI, "":
		return NewOpenAICompatible(opts), nil
	case BackendClaude:
		cfg := claude.DefaultConfig(opts.Token, opts.Endpoint)
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		if opts.MaxTokens > 0 {
			cfg.MaxTokens = opts.MaxTokens
		}
		cfg.Temperature = opts.Temperature
		return claude.New(cfg), nil
	case BackendGemini:
		cfg := gemini.DefaultConfig(opts.Token)
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		if opts.MaxTokens > 0 {
			cfg.MaxTokens = int(opts.MaxTokens)
		}
		cfg.Temperature = float32(opts.Temperature)
		return gemini.New(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown provider backend %q", backend)
	}
}
