package llm

import (
	"errors"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		input   string
		want    ProviderType
		wantErr bool
	}{
		{"openai", ProviderOpenAI, false},
		{"OpenAI", ProviderOpenAI, false},
		{"anthropic", ProviderAnthropic, false},
		{"claude", ProviderAnthropic, false},
		{"deepseek", ProviderDeepSeek, false},
		{"gemini", ProviderGemini, false},
		{"google", ProviderGemini, false},
		{"carrier-pigeon", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseProviderType(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseProviderType(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseProviderType(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestProviderTypeDefaults(t *testing.T) {
	for _, p := range []ProviderType{ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderGemini} {
		if p.DefaultModel() == "" {
			t.Errorf("%v has no default model", p)
		}
		if p.EnvVar() == "" {
			t.Errorf("%v has no API key env var", p)
		}
	}
}

func TestIsOverloaded(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("connection refused"), false},
		{"overloaded message", errors.New("anthropic: Overloaded"), true},
		{"rate limit message", errors.New("Rate limit exceeded"), true},
		{"too many requests", errors.New("too many requests, slow down"), true},
		{"openai 429", &openai.APIError{HTTPStatusCode: 429}, true},
		{"openai 503", &openai.APIError{HTTPStatusCode: 503}, true},
		{"openai 400", &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}, false},
		{"wrapped", fmt.Errorf("stream failed: %w", errors.New("server overloaded")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOverloaded(tt.err); got != tt.want {
				t.Errorf("IsOverloaded(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("connection reset"), false},
		{"api key message", errors.New("missing API key"), true},
		{"unauthorized message", errors.New("Unauthorized"), true},
		{"openai 401", &openai.APIError{HTTPStatusCode: 401}, true},
		{"openai 403", &openai.APIError{HTTPStatusCode: 403}, true},
		{"openai 500", &openai.APIError{HTTPStatusCode: 500, Message: "oops"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthError(tt.err); got != tt.want {
				t.Errorf("IsAuthError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTokenUsageAdd(t *testing.T) {
	total := TokenUsage{}
	total.Add(&TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	total.Add(&TokenUsage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5})
	total.Add(nil) // must be a no-op

	if total.PromptTokens != 12 || total.CompletionTokens != 8 || total.TotalTokens != 20 {
		t.Errorf("unexpected accumulation: %+v", total)
	}
}

func TestMessageConstructors(t *testing.T) {
	if m := SystemMessage("rules"); m.Role != "system" || m.Content != "rules" {
		t.Errorf("unexpected system message: %+v", m)
	}
	if m := UserMessage("hi"); m.Role != "user" {
		t.Errorf("unexpected user message: %+v", m)
	}
	if m := AssistantMessage("hello"); m.Role != "assistant" {
		t.Errorf("unexpected assistant message: %+v", m)
	}
	m := ToolMessage("call-1", "output")
	if m.Role != "tool" || m.ToolCallID != "call-1" {
		t.Errorf("unexpected tool message: %+v", m)
	}
}

func TestChunkKindString(t *testing.T) {
	tests := []struct {
		kind ChunkKind
		want string
	}{
		{ChunkPlain, "plain"},
		{ChunkClaude, "claude"},
		{ChunkDeepSeek, "deepseek"},
		{ChunkOpenRouter, "openrouter"},
		{ChunkKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ChunkKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
