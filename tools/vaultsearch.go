// Vault search tool.
//
// Wraps a Retriever as an ordinary tool. The structured JSON output is
// additionally post-processed by the agent loop to extract sources for
// citation and recall terms for later searches.
//
// Information Hiding:
// - Retrieval backend hidden behind the Retriever interface
// - Result wire format hidden behind ParseSearchResult
// - Recall-term expansion heuristics hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/notewell/notewell/model"
)

// VaultSearchName is the registered name of the vault search tool.
const VaultSearchName = "vault_search"

// DefaultSearchLimit is the default number of hits per query.
const DefaultSearchLimit = 6

// SearchHit is one retrieved vault passage.
type SearchHit struct {
	Title   string  `json:"title"`
	Path    string  `json:"path"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// SearchResult is the structured output of one vault search.
type SearchResult struct {
	Query       string            `json:"query"`
	Hits        []SearchHit       `json:"hits"`
	Sources     []model.SourceRef `json:"sources"`
	RecallTerms []string          `json:"recall_terms,omitempty"`
}

// ParseSearchResult decodes a search tool output back into its structured
// form.
func ParseSearchResult(output string) (SearchResult, error) {
	var result SearchResult
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		return SearchResult{}, fmt.Errorf("not a search result: %w", err)
	}
	return result, nil
}

// ContextBlock renders the hits as a grounding block for the next
// transcript turn.
func (r SearchResult) ContextBlock() string {
	if len(r.Hits) == 0 {
		return ""
	}
	var b strings.Builder
	for i, hit := range r.Hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s", i+1, hit.Title, hit.Path, hit.Excerpt)
	}
	return b.String()
}

// Retriever is the local-search capability backing the vault search tool.
type Retriever interface {
	// Search returns passages relevant to the query. recallTerms carry
	// expansion terms computed earlier in the same run.
	Search(ctx context.Context, query string, recallTerms []string, limit int) ([]SearchHit, error)
}

// VaultSearchTool searches the note vault.
type VaultSearchTool struct {
	BaseTool
	retriever Retriever
	maxHits   int
}

// NewVaultSearchTool creates a vault search tool over the given retriever.
func NewVaultSearchTool(retriever Retriever, maxHits int) *VaultSearchTool {
	if maxHits <= 0 {
		maxHits = DefaultSearchLimit
	}
	return &VaultSearchTool{retriever: retriever, maxHits: maxHits}
}

// Metadata returns the tool metadata.
func (t *VaultSearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        VaultSearchName,
		Description: "Search the note vault for passages relevant to a query. Returns excerpts with note titles and paths.",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "What to search for", Required: true},
			{Name: "limit", ParamType: "integer", Description: fmt.Sprintf("Maximum hits to return (default: %d)", DefaultSearchLimit), Required: false},
		},
	}
}

type vaultSearchArgs struct {
	Query       string   `json:"query"`
	Limit       *int     `json:"limit"`
	RecallTerms []string `json:"recall_terms"`
}

// Validate validates the arguments.
func (t *VaultSearchTool) Validate(args json.RawMessage) error {
	var a vaultSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// Execute runs the search and returns the result as JSON.
func (t *VaultSearchTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a vaultSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if strings.TrimSpace(a.Query) == "" {
		return FailureResultf("query cannot be empty"), nil
	}

	limit := t.maxHits
	if a.Limit != nil && *a.Limit > 0 && *a.Limit < limit {
		limit = *a.Limit
	}

	terms := mergeRecallTerms(a.RecallTerms, ExpandRecallTerms(a.Query))

	hits, err := t.retriever.Search(ctx, a.Query, terms, limit)
	if err != nil {
		return FailureResult(fmt.Errorf("search failed: %w", err)), nil
	}

	result := SearchResult{
		Query:       a.Query,
		Hits:        hits,
		RecallTerms: terms,
	}
	for _, hit := range hits {
		result.Sources = append(result.Sources, model.SourceRef{Title: hit.Title, Path: hit.Path})
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to encode result: %w", err)), nil
	}
	return SuccessResult(string(payload)), nil
}

// ExpandRecallTerms derives search expansion terms from a query: the
// distinct lowercased words long enough to carry meaning.
func ExpandRecallTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if len(word) < 4 || seen[word] {
			continue
		}
		seen[word] = true
		terms = append(terms, word)
	}
	return terms
}

// mergeRecallTerms combines caller-supplied and derived terms, preserving
// order and dropping case-insensitive duplicates.
func mergeRecallTerms(existing, derived []string) []string {
	var merged []string
	seen := make(map[string]bool)
	for _, term := range append(append([]string{}, existing...), derived...) {
		key := strings.ToLower(strings.TrimSpace(term))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, strings.TrimSpace(term))
	}
	return merged
}
