// Package llm provides shared data models for LLM providers.
package llm

import "encoding/json"

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
}

// ToolCall represents a complete tool call from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a tool that the LLM can call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    "system",
		Content: content,
	}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    "user",
		Content: content,
	}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    "assistant",
		Content: content,
	}
}

// ToolMessage creates a tool result message bound to a tool call ID.
func ToolMessage(toolCallID, content string) ChatMessage {
	return ChatMessage{
		Role:       "tool",
		Content:    content,
		ToolCallID: toolCallID,
	}
}

// LLMResponse represents a non-streaming response from an LLM provider.
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall // Tool calls requested by the LLM
	Usage     *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// Add accumulates another usage snapshot into this one.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ChunkKind identifies the upstream shape of a streaming chunk.
// Each provider tags its chunks once at the source so consumers can
// dispatch via explicit matching instead of probing fields.
type ChunkKind int

const (
	// ChunkPlain carries content as a single text delta (OpenAI-style).
	ChunkPlain ChunkKind = iota
	// ChunkClaude carries content as a list of typed parts (Anthropic-style).
	ChunkClaude
	// ChunkDeepSeek carries reasoning via the reasoning_content side channel.
	ChunkDeepSeek
	// ChunkOpenRouter is OpenAI-shaped with an optional reasoning side
	// channel. Only the reasoning_content delta field is decoded; models
	// routed through OpenRouter that emit the newer top-level "reasoning"
	// delta field are not captured, since the client's delta type does not
	// carry it. Their answer content still streams normally.
	ChunkOpenRouter
)

// String returns the string representation of the chunk kind.
func (k ChunkKind) String() string {
	switch k {
	case ChunkPlain:
		return "plain"
	case ChunkClaude:
		return "claude"
	case ChunkDeepSeek:
		return "deepseek"
	case ChunkOpenRouter:
		return "openrouter"
	default:
		return "unknown"
	}
}

// PartType identifies the type of a content part in a claude-style chunk.
type PartType int

const (
	// PartText is a visible text delta.
	PartText PartType = iota
	// PartThinking is a reasoning/thinking text delta.
	PartThinking
)

// ContentPart is one typed segment of a claude-style chunk.
type ContentPart struct {
	Type PartType
	Text string
}

// ToolCallDelta is one fragment of a streamed tool call. Providers may
// deliver the id, name and argument JSON split across many deltas; fragments
// sharing an Index belong to the same logical call.
type ToolCallDelta struct {
	Index int
	ID    string
	Name  string
	Args  string
}

// Finish reason values normalized across providers.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
)

// StreamChunk is one unit of a streaming response. A chunk may carry any
// combination of text, typed parts, side-channel reasoning, tool-call
// fragments, a finish reason and token usage; absent fields are zero.
type StreamChunk struct {
	Kind         ChunkKind
	Text         string        // visible text delta (plain/deepseek/openrouter shapes)
	Parts        []ContentPart // typed parts (claude shape)
	Reasoning    string        // side-channel reasoning delta
	ToolCalls    []ToolCallDelta
	FinishReason string
	Usage        *TokenUsage
}
