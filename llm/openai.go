// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API client initialization and authentication
// - Chat Completions request/response conversion
// - Streaming delta handling, including fragmented tool calls

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return chatCompletion(ctx, p.client, p.model, p.maxTokens, p.temperature, messages, nil)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return chatCompletion(ctx, p.client, p.model, p.maxTokens, p.temperature, messages, tools)
}

// StreamChat streams a plain chat completion.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	return streamCompletion(ctx, p.client, p.model, p.maxTokens, p.temperature, messages, chunks)
}

// StreamChatWithTools streams a chat completion with tool definitions.
func (p *OpenAIProvider) StreamChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, chunks chan<- StreamChunk) error {
	return streamCompletionWithTools(ctx, p.client, ChunkPlain, p.model, p.maxTokens, p.temperature, messages, tools, chunks)
}

// chatCompletion is the shared non-streaming path for OpenAI-compatible APIs.
func chatCompletion(ctx context.Context, client *openai.Client, model string, maxTokens int, temperature float32, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:               model,
		Messages:            convertMessages(messages),
		MaxCompletionTokens: maxTokens,
		Temperature:         temperature,
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	var toolCalls []ToolCall
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		for _, tc := range resp.Choices[0].Message.ToolCalls {
			toolCalls = append(toolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return LLMResponse{Content: content, ToolCalls: toolCalls, Usage: usage}, nil
}

// streamCompletion is the shared plain streaming path for OpenAI-compatible APIs.
func streamCompletion(ctx context.Context, client *openai.Client, model string, maxTokens int, temperature float32, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	req := openai.ChatCompletionRequest{
		Model:               model,
		Messages:            convertMessages(messages),
		MaxCompletionTokens: maxTokens,
		Temperature:         temperature,
		Stream:              true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	var usage *TokenUsage
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, fmt.Errorf("stream recv failed: %w", err)
		}

		// Usage arrives on the final chunk
		if response.Usage != nil {
			usage = &TokenUsage{
				PromptTokens:     uint32(response.Usage.PromptTokens),
				CompletionTokens: uint32(response.Usage.CompletionTokens),
				TotalTokens:      uint32(response.Usage.TotalTokens),
			}
		}

		if len(response.Choices) > 0 {
			content := response.Choices[0].Delta.Content
			if content != "" {
				select {
				case chunks <- content:
				case <-ctx.Done():
					return usage, ctx.Err()
				}
			}
		}
	}
}

// streamCompletionWithTools is the shared tool streaming path for
// OpenAI-compatible APIs. Each wire delta becomes one StreamChunk tagged
// with kind; tool-call fragments are passed through untouched so the
// consumer's accumulator sees the provider's original fragmentation.
func streamCompletionWithTools(ctx context.Context, client *openai.Client, kind ChunkKind, model string, maxTokens int, temperature float32, messages []ChatMessage, tools []ToolDefinition, chunks chan<- StreamChunk) error {
	req := openai.ChatCompletionRequest{
		Model:               model,
		Messages:            convertMessagesWithTools(messages),
		MaxCompletionTokens: maxTokens,
		Temperature:         temperature,
		Stream:              true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
	}

	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream recv failed: %w", err)
		}

		chunk := StreamChunk{Kind: kind}

		if response.Usage != nil {
			chunk.Usage = &TokenUsage{
				PromptTokens:     uint32(response.Usage.PromptTokens),
				CompletionTokens: uint32(response.Usage.CompletionTokens),
				TotalTokens:      uint32(response.Usage.TotalTokens),
			}
		}

		if len(response.Choices) > 0 {
			choice := response.Choices[0]
			chunk.Text = choice.Delta.Content
			chunk.Reasoning = choice.Delta.ReasoningContent
			chunk.FinishReason = normalizeFinishReason(choice.FinishReason)

			for _, tc := range choice.Delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				chunk.ToolCalls = append(chunk.ToolCalls, ToolCallDelta{
					Index: index,
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Args:  tc.Function.Arguments,
				})
			}
		}

		if chunkEmpty(chunk) {
			continue
		}

		select {
		case chunks <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// chunkEmpty reports whether a chunk carries no information worth forwarding.
func chunkEmpty(c StreamChunk) bool {
	return c.Text == "" && c.Reasoning == "" && len(c.Parts) == 0 &&
		len(c.ToolCalls) == 0 && c.FinishReason == "" && c.Usage == nil
}

// normalizeFinishReason maps OpenAI finish reasons onto the shared values.
func normalizeFinishReason(r openai.FinishReason) string {
	switch r {
	case openai.FinishReasonStop:
		return FinishStop
	case openai.FinishReasonLength:
		return FinishLength
	case openai.FinishReasonToolCalls:
		return FinishToolCalls
	case openai.FinishReasonNull, "":
		return ""
	default:
		return string(r)
	}
}

// convertMessages converts our ChatMessage to openai.ChatCompletionMessage
func convertMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		result[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return result
}

// convertMessagesWithTools handles tool calls and tool responses.
func convertMessagesWithTools(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
		}
		if msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}
		result[i] = oaiMsg
	}
	return result
}

// convertTools converts tool definitions to OpenAI format.
func convertTools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
