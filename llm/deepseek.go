// DeepSeek Provider implementation using go-openai library.
//
// Information Hiding:
// - Uses OpenAI-compatible API with different base URL
// - Supports deepseek-chat and deepseek-reasoner models
// - Reasoning arrives via the reasoning_content side channel

package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekProvider implements the Provider interface for DeepSeek.
type DeepSeekProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewDeepSeekProvider creates a new DeepSeek provider.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32) *DeepSeekProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = deepseekBaseURL

	return &DeepSeekProvider{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *DeepSeekProvider) Name() string {
	return "deepseek"
}

// Model returns the current model.
func (p *DeepSeekProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *DeepSeekProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return chatCompletion(ctx, p.client, p.model, p.maxTokens, p.temperature, messages, nil)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *DeepSeekProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return chatCompletion(ctx, p.client, p.model, p.maxTokens, p.temperature, messages, tools)
}

// StreamChat streams a plain chat completion.
func (p *DeepSeekProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	return streamCompletion(ctx, p.client, p.model, p.maxTokens, p.temperature, messages, chunks)
}

// StreamChatWithTools streams a chat completion with tool definitions.
// Chunks are tagged deepseek so consumers route reasoning_content deltas
// into the thinking channel.
func (p *DeepSeekProvider) StreamChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, chunks chan<- StreamChunk) error {
	return streamCompletionWithTools(ctx, p.client, ChunkDeepSeek, p.model, p.maxTokens, p.temperature, messages, tools, chunks)
}

// Verify DeepSeekProvider implements Provider
var _ Provider = (*DeepSeekProvider)(nil)
