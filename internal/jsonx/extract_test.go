package jsonx

import (
	"strings"
	"testing"
)

func TestExtractObjectPure(t *testing.T) {
	response := `{"query": "meeting notes", "limit": 5}`
	result, err := ExtractObject(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != response {
		t.Errorf("expected %q, got %q", response, result)
	}
}

func TestExtractObjectEmbedded(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"prefix", `Here is the call: {"query": "x"}`, `{"query": "x"}`},
		{"suffix", `{"query": "x"} done`, `{"query": "x"}`},
		{"both", `thinking... {"query": "x"} done!`, `{"query": "x"}`},
		{"fenced", "```json\n{\"query\": \"x\"}\n```", `{"query": "x"}`},
		{"bare fence", "```\n{\"query\": \"x\"}\n```", `{"query": "x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ExtractObject(tt.response)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.want {
				t.Errorf("expected %q, got %q", tt.want, result)
			}
		})
	}
}

func TestExtractObjectNoJSON(t *testing.T) {
	_, err := ExtractObject("no json here at all")
	if err == nil {
		t.Fatal("expected error for response without JSON")
	}
	if !strings.Contains(err.Error(), "failed to extract") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKey string
		wantVal interface{}
		wantErr bool
	}{
		{"valid", `{"query": "alpha"}`, "query", "alpha", false},
		{"empty string", "", "", nil, false},
		{"degenerate object", "{}", "", nil, false},
		{"whitespace", "  \n ", "", nil, false},
		{"null literal", "null", "", nil, false},
		{"sloppy wrapper", "args: {\"query\": \"alpha\"}", "query", "alpha", false},
		{"truncated", `{"query": "al`, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := ParseArguments(tt.raw)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if args == nil {
				t.Fatal("arguments map must never be nil")
			}
			if tt.wantKey != "" && args[tt.wantKey] != tt.wantVal {
				t.Errorf("expected %s=%v, got %v", tt.wantKey, tt.wantVal, args[tt.wantKey])
			}
			if tt.wantKey == "" && len(args) != 0 {
				t.Errorf("expected empty arguments, got %v", args)
			}
		})
	}
}
