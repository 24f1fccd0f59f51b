package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// fakeRetriever returns scripted hits and records the last query.
type fakeRetriever struct {
	hits        []SearchHit
	err         error
	lastQuery   string
	lastRecall  []string
	lastLimit   int
}

func (f *fakeRetriever) Search(ctx context.Context, query string, recallTerms []string, limit int) ([]SearchHit, error) {
	f.lastQuery = query
	f.lastRecall = recallTerms
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.hits) {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func TestVaultSearchExecute(t *testing.T) {
	retriever := &fakeRetriever{hits: []SearchHit{
		{Title: "Weekly Plan", Path: "work/weekly-plan.md", Excerpt: "ship the decoder", Score: 0.9},
		{Title: "Roadmap", Path: "plans/roadmap.md", Excerpt: "Q3 goals", Score: 0.7},
	}}
	tool := NewVaultSearchTool(retriever, 6)

	args, _ := json.Marshal(map[string]interface{}{"query": "what are the project goals"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success() {
		t.Fatalf("unexpected failure: %v", result.Error)
	}

	parsed, err := ParseSearchResult(result.Output)
	if err != nil {
		t.Fatalf("output is not a search result: %v", err)
	}
	if len(parsed.Hits) != 2 || len(parsed.Sources) != 2 {
		t.Errorf("hits/sources mismatch: %+v", parsed)
	}
	if parsed.Sources[0].Title != "Weekly Plan" || parsed.Sources[0].Path != "work/weekly-plan.md" {
		t.Errorf("source not derived from hit: %+v", parsed.Sources[0])
	}
	// Short words are dropped from recall terms.
	for _, term := range parsed.RecallTerms {
		if len(term) < 4 {
			t.Errorf("short recall term leaked: %q", term)
		}
	}
}

func TestVaultSearchRecallTermsMerged(t *testing.T) {
	retriever := &fakeRetriever{}
	tool := NewVaultSearchTool(retriever, 6)

	args, _ := json.Marshal(map[string]interface{}{
		"query":        "decoder design",
		"recall_terms": []string{"streaming", "Decoder"},
	})
	if _, err := tool.Execute(context.Background(), args); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	joined := strings.Join(retriever.lastRecall, " ")
	if !strings.Contains(joined, "streaming") {
		t.Errorf("caller-supplied terms dropped: %v", retriever.lastRecall)
	}
	// "Decoder" and derived "decoder" must not both survive.
	count := 0
	for _, term := range retriever.lastRecall {
		if strings.EqualFold(term, "decoder") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("case-insensitive duplicate kept: %v", retriever.lastRecall)
	}
}

func TestVaultSearchLimit(t *testing.T) {
	retriever := &fakeRetriever{hits: make([]SearchHit, 10)}
	tool := NewVaultSearchTool(retriever, 6)

	args, _ := json.Marshal(map[string]interface{}{"query": "anything", "limit": 2})
	result, err := tool.Execute(context.Background(), args)
	if err != nil || !result.Success() {
		t.Fatalf("execute failed: %v %v", err, result.Error)
	}
	if retriever.lastLimit != 2 {
		t.Errorf("limit not forwarded, got %d", retriever.lastLimit)
	}
}

func TestVaultSearchEmptyQuery(t *testing.T) {
	tool := NewVaultSearchTool(&fakeRetriever{}, 6)
	args, _ := json.Marshal(map[string]interface{}{"query": "  "})

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success() {
		t.Error("empty query must fail")
	}
}

func TestVaultSearchRetrieverError(t *testing.T) {
	tool := NewVaultSearchTool(&fakeRetriever{err: errors.New("index corrupt")}, 6)
	args, _ := json.Marshal(map[string]interface{}{"query": "anything"})

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("retriever errors are tool-level failures: %v", err)
	}
	if result.Success() {
		t.Error("expected failure result")
	}
}

func TestSearchResultContextBlock(t *testing.T) {
	result := SearchResult{Hits: []SearchHit{
		{Title: "A", Path: "a.md", Excerpt: "first"},
		{Title: "B", Path: "b.md", Excerpt: "second"},
	}}

	block := result.ContextBlock()
	if !strings.Contains(block, "[1] A (a.md)\nfirst") || !strings.Contains(block, "[2] B (b.md)\nsecond") {
		t.Errorf("unexpected context block:\n%s", block)
	}

	if empty := (SearchResult{}).ContextBlock(); empty != "" {
		t.Errorf("empty result must render empty block, got %q", empty)
	}
}

func TestExpandRecallTerms(t *testing.T) {
	terms := ExpandRecallTerms("What are the Q3 roadmap goals, really?")

	joined := strings.Join(terms, " ")
	if !strings.Contains(joined, "roadmap") || !strings.Contains(joined, "goals") {
		t.Errorf("meaningful words missing: %v", terms)
	}
	for _, term := range terms {
		if term != strings.ToLower(term) {
			t.Errorf("term not lowercased: %q", term)
		}
	}
}
