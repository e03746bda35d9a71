package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// anthropicBreakpointLimit is the documented maximum number of cache
// breakpoints per Anthropic request.
const anthropicBreakpointLimit = 4

// AnthropicProvider implements Provider for Anthropic Claude models.
type AnthropicProvider struct {
	chatModel model.ToolCallingChatModel
	config    *AnthropicConfig
}

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(ctx context.Context, config *AnthropicConfig) (*AnthropicProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	cfg := &claude.Config{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: maxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = &config.BaseURL
	}

	chatModel, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Claude model: %w", err)
	}

	return &AnthropicProvider{chatModel: chatModel, config: config}, nil
}

// ID returns the provider identifier.
func (p *AnthropicProvider) ID() string { return "anthropic" }

// Info returns the provider's capability metadata.
func (p *AnthropicProvider) Info() Info {
	return Info{
		ID:     "anthropic",
		Name:   "Anthropic",
		Models: anthropicModels(),
		CacheControl: CacheCapability{
			Supported:       true,
			BreakpointLimit: anthropicBreakpointLimit,
		},
	}
}

// CreateCompletion creates a streaming completion.
func (p *AnthropicProvider) CreateCompletion(ctx context.Context, req *Request) (*Stream, error) {
	chatModel := p.chatModel
	if len(req.Tools) > 0 {
		var err error
		chatModel, err = chatModel.WithTools(toolInfos(req.Tools))
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}

	messages := req.Messages
	if req.System != nil {
		messages = append([]*schema.Message{req.System}, messages...)
	}

	stream, err := chatModel.Stream(ctx, messages,
		model.WithMaxTokens(req.MaxTokens),
		model.WithTemperature(float32(req.Temperature)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return NewStream(stream), nil
}

// anthropicModels returns the list of Anthropic models.
func anthropicModels() []Model {
	return []Model{
		{
			ID:              "claude-sonnet-4-20250514",
			Name:            "Claude Sonnet 4",
			ProviderID:      "anthropic",
			ContextLength:   200000,
			MaxOutputTokens: 64000,
			SupportsTools:   true,
		},
		{
			ID:              "claude-opus-4-20250514",
			Name:            "Claude Opus 4",
			ProviderID:      "anthropic",
			ContextLength:   200000,
			MaxOutputTokens: 32000,
			SupportsTools:   true,
		},
		{
			ID:              "claude-3-5-haiku-20241022",
			Name:            "Claude 3.5 Haiku",
			ProviderID:      "anthropic",
			ContextLength:   200000,
			MaxOutputTokens: 8192,
			SupportsTools:   true,
		},
	}
}
