// OpenRouter Provider implementation using go-openai library.
//
// OpenRouter speaks the OpenAI Chat Completions protocol at a different
// base URL and routes to many underlying models. Reasoning-capable models
// surface thinking via the reasoning_content side channel when available.

package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterProvider implements the Provider interface for OpenRouter.
type OpenRouterProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenRouterProvider creates a new OpenRouter provider.
func NewOpenRouterProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenRouterProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = openRouterBaseURL

	return &OpenRouterProvider{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenRouterProvider) Name() string {
	return "openrouter"
}

// Model returns the current model.
func (p *OpenRouterProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *OpenRouterProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return chatCompletion(ctx, p.client, p.model, p.maxTokens, p.temperature, messages, nil)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *OpenRouterProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return chatCompletion(ctx, p.client, p.model, p.maxTokens, p.temperature, messages, tools)
}

// StreamChat streams a plain chat completion.
func (p *OpenRouterProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	return streamCompletion(ctx, p.client, p.model, p.maxTokens, p.temperature, messages, chunks)
}

// StreamChatWithTools streams a chat completion with tool definitions.
func (p *OpenRouterProvider) StreamChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, chunks chan<- StreamChunk) error {
	return streamCompletionWithTools(ctx, p.client, ChunkOpenRouter, p.model, p.maxTokens, p.temperature, messages, tools, chunks)
}

// Verify OpenRouterProvider implements Provider
var _ Provider = (*OpenRouterProvider)(nil)
