package tools

import (
	"context"
	"strings"
	"testing"
)

func TestKeywordRetrieverSearch(t *testing.T) {
	root := newTestVault(t)
	retriever := NewKeywordRetriever(root)

	hits, err := retriever.Search(context.Background(), "decoder shipping plans", nil, 6)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if hits[0].Path != "work/weekly-plan.md" {
		t.Errorf("expected the decoder note first, got %q", hits[0].Path)
	}
	if !strings.Contains(hits[0].Excerpt, "decoder") {
		t.Errorf("excerpt does not show the match: %q", hits[0].Excerpt)
	}
	for _, hit := range hits {
		if strings.Contains(hit.Path, ".obsidian") || strings.HasSuffix(hit.Path, ".png") {
			t.Errorf("non-note file surfaced: %q", hit.Path)
		}
	}
}

func TestKeywordRetrieverRecallTerms(t *testing.T) {
	root := newTestVault(t)
	retriever := NewKeywordRetriever(root)

	// The query alone misses the roadmap note; the recall term finds it.
	hits, err := retriever.Search(context.Background(), "objectives", []string{"goals"}, 6)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	found := false
	for _, hit := range hits {
		if hit.Path == "plans/roadmap.md" {
			found = true
		}
	}
	if !found {
		t.Errorf("recall term did not widen the search: %+v", hits)
	}
}

func TestKeywordRetrieverRanking(t *testing.T) {
	root := newTestVault(t)
	retriever := NewKeywordRetriever(root)

	hits, err := retriever.Search(context.Background(), "notes sync", nil, 6)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not sorted by score: %+v", hits)
		}
	}
}

func TestKeywordRetrieverLimit(t *testing.T) {
	root := newTestVault(t)
	retriever := NewKeywordRetriever(root)

	hits, err := retriever.Search(context.Background(), "notes plan sync goals capture", nil, 1)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) > 1 {
		t.Errorf("limit ignored: %d hits", len(hits))
	}
}

func TestKeywordRetrieverEmptyQuery(t *testing.T) {
	root := newTestVault(t)
	retriever := NewKeywordRetriever(root)

	hits, err := retriever.Search(context.Background(), "a an of", nil, 6)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stop-word query must match nothing, got %+v", hits)
	}
}
