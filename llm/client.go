// Client - Simple wrapper around providers.

package llm

import (
	"context"
)

// Client wraps a Provider with a simple interface.
type Client struct {
	provider Provider
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Chat sends a chat completion request and returns just the content.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	response, err := c.provider.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

// ChatWithUsage sends a chat completion request and returns content with token usage.
func (c *Client) ChatWithUsage(ctx context.Context, messages []ChatMessage) (string, *TokenUsage, error) {
	response, err := c.provider.Chat(ctx, messages)
	if err != nil {
		return "", nil, err
	}
	return response.Content, response.Usage, nil
}

// ChatWithTools sends a chat completion request with tool definitions.
func (c *Client) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return c.provider.ChatWithTools(ctx, messages, tools)
}

// StreamChat streams a plain chat completion.
func (c *Client) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	return c.provider.StreamChat(ctx, messages, chunks)
}

// StreamChatWithTools streams a chat completion with tool definitions.
func (c *Client) StreamChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, chunks chan<- StreamChunk) error {
	return c.provider.StreamChatWithTools(ctx, messages, tools, chunks)
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}
