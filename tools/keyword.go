// Keyword-based vault retriever.
//
// Information Hiding:
// - Scoring and excerpt selection hidden behind the Retriever interface
// - Filesystem walking and note filtering encapsulated
// - No index is kept; every search scans the vault

package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeywordRetriever implements Retriever with a simple term-overlap scan
// over the markdown notes in a vault. Good enough for small vaults and
// tests; larger deployments should inject a real index instead.
type KeywordRetriever struct {
	root        string
	maxNoteSize int64
}

// NewKeywordRetriever creates a retriever scanning the given vault root.
func NewKeywordRetriever(root string) *KeywordRetriever {
	return &KeywordRetriever{root: root, maxNoteSize: DefaultMaxNoteSize}
}

// Search scans the vault and returns the best-scoring notes.
// Query words score double relative to recall terms.
func (r *KeywordRetriever) Search(ctx context.Context, query string, recallTerms []string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryTerms := ExpandRecallTerms(query)
	terms := make(map[string]float64, len(queryTerms)+len(recallTerms))
	for _, t := range queryTerms {
		terms[strings.ToLower(t)] = 2
	}
	for _, t := range recallTerms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := terms[t]; !ok {
			terms[t] = 1
		}
	}
	if len(terms) == 0 {
		return []SearchHit{}, nil
	}

	var hits []SearchHit
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != r.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".md") {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > r.maxNoteSize {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			// Unreadable notes are skipped, not fatal
			return nil
		}

		score, excerpt := scoreNote(string(content), terms)
		if score <= 0 {
			return nil
		}

		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		hits = append(hits, SearchHit{
			Title:   noteTitle(rel),
			Path:    rel,
			Excerpt: excerpt,
			Score:   score,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vault scan failed: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit < len(hits) {
		hits = hits[:limit]
	}
	if hits == nil {
		hits = []SearchHit{}
	}
	return hits, nil
}

// scoreNote scores a note against weighted terms and picks the
// best-matching line as the excerpt.
func scoreNote(content string, terms map[string]float64) (float64, string) {
	lines := strings.Split(content, "\n")

	var total float64
	bestLine := ""
	bestScore := 0.0

	for _, line := range lines {
		lower := strings.ToLower(line)
		var lineScore float64
		for term, weight := range terms {
			if strings.Contains(lower, term) {
				lineScore += weight
			}
		}
		total += lineScore
		if lineScore > bestScore {
			bestScore = lineScore
			bestLine = strings.TrimSpace(line)
		}
	}

	const maxExcerpt = 200
	if len(bestLine) > maxExcerpt {
		bestLine = bestLine[:maxExcerpt] + "..."
	}
	return total, bestLine
}

// Verify KeywordRetriever implements Retriever
var _ Retriever = (*KeywordRetriever)(nil)
