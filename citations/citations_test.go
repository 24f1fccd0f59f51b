package citations

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/notewell/notewell/model"
)

// bodyNumbers extracts the numeric citation markers from everything before
// the rendered source section, in order of appearance.
func bodyNumbers(t *testing.T, text string) []int {
	t.Helper()
	body := text
	if i := strings.Index(text, sourcesHeading); i >= 0 {
		body = text[:i]
	}
	var nums []int
	for _, m := range regexp.MustCompile(`\[(\d+(?:, \d+)*)\]`).FindAllStringSubmatch(body, -1) {
		for _, d := range strings.Split(m[1], ", ") {
			n, err := strconv.Atoi(d)
			if err != nil {
				t.Fatalf("bad marker in %q", body)
			}
			nums = append(nums, n)
		}
	}
	return nums
}

func TestProcessInlineCitationsFirstMentionOrder(t *testing.T) {
	input := "claim [^9] and [^1]\n\nSources:\n[^1]: [[A]]\n[^9]: [[B]]"

	got := ProcessInlineCitations(input, true)

	if !strings.Contains(got, "claim [1] and [2]") {
		t.Errorf("markers not renumbered by first mention:\n%s", got)
	}
	if !strings.Contains(got, "1. [[B]]") || !strings.Contains(got, "2. [[A]]") {
		t.Errorf("source list not reordered:\n%s", got)
	}
	if strings.Contains(got, "[^") {
		t.Errorf("footnote syntax left behind:\n%s", got)
	}
}

func TestProcessInlineCitationsGroupedMarker(t *testing.T) {
	input := "see [^6, ^1, ^4]\n\nSources:\n[^1]: [[A]]\n[^4]: [[B]]\n[^6]: [[C]]"

	got := ProcessInlineCitations(input, true)

	if !strings.Contains(got, "see [1, 2, 3]") {
		t.Errorf("group not renumbered and sorted ascending:\n%s", got)
	}
	if !strings.Contains(got, "1. [[C]]") {
		t.Errorf("first-mentioned source must be numbered 1:\n%s", got)
	}
}

func TestProcessInlineCitationsConsecutiveMarkers(t *testing.T) {
	input := "text [^7][^8]\n\nSources:\n[^7]: [[X]]\n[^8]: [[Y]]"

	got := ProcessInlineCitations(input, true)

	if !strings.Contains(got, "text [1][2]") {
		t.Errorf("adjacent markers not both rewritten:\n%s", got)
	}
}

func TestProcessInlineCitationsTrailingPeriodStripped(t *testing.T) {
	input := "a fact [^3].\n\nSources:\n[^3]: [[Note]]"

	got := ProcessInlineCitations(input, true)

	if strings.Contains(got, "[1].") {
		t.Errorf("period after marker must be stripped:\n%s", got)
	}
	if !strings.Contains(got, "a fact [1]") {
		t.Errorf("marker lost:\n%s", got)
	}
}

func TestProcessInlineCitationsHeadingSpellings(t *testing.T) {
	headings := []string{"Sources:", "#### Sources", "**Sources**", "Source:"}

	for _, h := range headings {
		t.Run(h, func(t *testing.T) {
			input := "claim [^2]\n\n" + h + "\n[^2]: [[A]]"
			got := ProcessInlineCitations(input, true)
			if !strings.Contains(got, "claim [1]") {
				t.Errorf("heading %q not recognized:\n%s", h, got)
			}
		})
	}
}

func TestProcessInlineCitationsDuplicateTitlesMerged(t *testing.T) {
	input := "x [^1] y [^2] z [^3]\n\nSources:\n[^1]: [[Weekly Plan]]\n[^2]: [[weekly plan]]\n[^3]: [[Other]]"

	got := ProcessInlineCitations(input, true)

	if !strings.Contains(got, "x [1] y [1] z [2]") {
		t.Errorf("case-insensitive duplicate not remapped:\n%s", got)
	}
	if strings.Contains(got, "[[weekly plan]]") {
		t.Errorf("duplicate entry kept in source list:\n%s", got)
	}
}

func TestProcessInlineCitationsSourceDisplayForms(t *testing.T) {
	tests := []struct {
		name string
		def  string
		want string
	}{
		{"title with url", "Go Blog (https://go.dev/blog)", "[Go Blog](https://go.dev/blog)"},
		{"markdown link", "[Go Blog](https://go.dev/blog)", "[Go Blog](https://go.dev/blog)"},
		{"wiki link", "[[Meeting Notes]]", "[[Meeting Notes]]"},
		{"wiki link with alias", "[[Meeting Notes|notes]]", "[[Meeting Notes|notes]]"},
		{"trailing metadata stripped", "Quarterly Report (updated 2024)", "Quarterly Report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "claim [^1]\n\nSources:\n[^1]: " + tt.def
			got := ProcessInlineCitations(input, true)
			if !strings.Contains(got, "1. "+tt.want) {
				t.Errorf("definition %q rendered wrong:\n%s", tt.def, got)
			}
		})
	}
}

func TestProcessInlineCitationsUnmentionedDefinitionsAppended(t *testing.T) {
	input := "only [^5]\n\nSources:\n[^2]: [[Extra]]\n[^5]: [[Cited]]"

	got := ProcessInlineCitations(input, true)

	if !strings.Contains(got, "only [1]") {
		t.Errorf("mentioned marker must come first:\n%s", got)
	}
	if !strings.Contains(got, "1. [[Cited]]") || !strings.Contains(got, "2. [[Extra]]") {
		t.Errorf("unmentioned definition must trail in definition order:\n%s", got)
	}
}

func TestProcessInlineCitationsContiguousNumbering(t *testing.T) {
	input := "a [^12] b [^3, ^12, ^40] c [^7][^3]\n\nSources:\n[^3]: [[A]]\n[^7]: [[B]]\n[^12]: [[C]]\n[^40]: [[D]]"

	got := ProcessInlineCitations(input, true)

	nums := bodyNumbers(t, got)
	distinct := make(map[int]bool)
	for _, n := range nums {
		distinct[n] = true
	}
	var sorted []int
	for n := range distinct {
		sorted = append(sorted, n)
	}
	sort.Ints(sorted)
	for i, n := range sorted {
		if n != i+1 {
			t.Fatalf("numbering has gaps: %v in\n%s", sorted, got)
		}
	}
	if len(sorted) != 4 {
		t.Errorf("expected 4 distinct numbers, got %v", sorted)
	}
}

func TestProcessInlineCitationsIdempotent(t *testing.T) {
	inputs := []string{
		"claim [^9] and [^1]\n\nSources:\n[^1]: [[A]]\n[^9]: [[B]]",
		"no citations at all",
		"bullets only\n\nSources:\n- [[A]]\n- [[B]]",
	}

	for _, input := range inputs {
		once := ProcessInlineCitations(input, true)
		twice := ProcessInlineCitations(once, true)
		if once != twice {
			t.Errorf("not idempotent for %q:\nfirst:\n%s\nsecond:\n%s", input, once, twice)
		}
	}
}

func TestProcessInlineCitationsDisabled(t *testing.T) {
	input := "claim [^9]\n\nSources:\n[^9]: [[B]]"
	if got := ProcessInlineCitations(input, false); got != input {
		t.Errorf("disabled processing must pass through, got:\n%s", got)
	}
}

func TestProcessInlineCitationsNoDefinitionsBulletFallback(t *testing.T) {
	input := "answer text\n\nSources:\n- [[First Note]]\n- [[Second Note]]"

	got := ProcessInlineCitations(input, true)

	if !strings.Contains(got, "- [[First Note]]") || !strings.Contains(got, "- [[Second Note]]") {
		t.Errorf("bullet source lines lost:\n%s", got)
	}
	if !strings.Contains(got, "<details>") {
		t.Errorf("expected collapsible rendering:\n%s", got)
	}
}

func TestProcessInlineCitationsPlainTextUntouched(t *testing.T) {
	input := "just an answer with a list [1, 2] of things"
	if got := ProcessInlineCitations(input, true); got != input {
		t.Errorf("text without footnotes must pass through, got:\n%s", got)
	}
}

func TestAddFallbackSources(t *testing.T) {
	sources := []model.SourceRef{
		{Title: "Meeting Notes", Path: "work/meeting.md"},
		{Title: "meeting notes", Path: "archive/meeting.md"},
		{Title: "Roadmap", Path: "plans/roadmap.md"},
	}

	got := AddFallbackSources("answer without citations", sources, true)

	if !strings.Contains(got, "1. [[Meeting Notes]]") || !strings.Contains(got, "2. [[Roadmap]]") {
		t.Errorf("fallback list wrong:\n%s", got)
	}
	if strings.Count(got, "[[") != 2 {
		t.Errorf("duplicate title must be collapsed:\n%s", got)
	}
}

func TestAddFallbackSourcesSkipsExistingSection(t *testing.T) {
	text := "answer [1]\n\n#### Sources:\n\n1. [[A]]"
	got := AddFallbackSources(text, []model.SourceRef{{Title: "B"}}, true)
	if got != text {
		t.Errorf("must not duplicate an existing section:\n%s", got)
	}
}

func TestAddFallbackSourcesDisabledOrEmpty(t *testing.T) {
	if got := AddFallbackSources("text", nil, true); got != "text" {
		t.Errorf("empty catalog must pass through, got %q", got)
	}
	if got := AddFallbackSources("text", []model.SourceRef{{Title: "A"}}, false); got != "text" {
		t.Errorf("disabled must pass through, got %q", got)
	}
}
