// Package citations normalizes footnote-style citations in model output.
//
// Models emit citations against a source catalog using footnote markers
// ([^7], grouped [^6, ^1, ^4]) and a trailing definition list, numbered in
// whatever order the catalog happened to present sources. This package
// rewrites the markers into a contiguous sequence ordered by first mention
// in the answer body, consolidates duplicate sources, and renders the
// definitions as a collapsible indexed list.
//
// Information Hiding:
// - Footnote marker grammar and rewrite order
// - Source definition parsing heuristics
// - Duplicate-source consolidation policy
package citations

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/notewell/notewell/model"
)

const sourcesHeading = "#### Sources:"

var (
	// Heading spellings seen in model output: "Sources:", "#### Sources",
	// "**Sources**", "Source:". Must occupy its own line.
	headingRe = regexp.MustCompile(`(?mi)^(?:#{1,6}[ \t]*)?\*{0,2}sources?\*{0,2}[ \t]*:?[ \t]*$`)

	// Footnote definition line: "[^9]: content", optionally bulleted.
	definitionRe = regexp.MustCompile(`(?m)^[ \t]*(?:[-*][ \t]+)?\[\^(\d+)\]:[ \t]*(.+?)[ \t]*$`)

	// Inline marker, single or grouped: [^7] or [^6, ^1, ^4].
	markerRe = regexp.MustCompile(`\[[ \t]*\^\d+(?:[ \t]*,[ \t]*\^?\d+)*[ \t]*\]`)
	numberRe = regexp.MustCompile(`\d+`)

	// A rewritten numeric marker followed by a period. The period is
	// dropped so a marker at start of line is not mistaken for an
	// ordered-list item by markdown renderers.
	markerPeriodRe = regexp.MustCompile(`(\[\d+(?:, \d+)*\])\.`)

	mdLinkRe        = regexp.MustCompile(`^\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	titleURLRe      = regexp.MustCompile(`^(.*?)[ \t]*\((https?://[^)\s]+)\)$`)
	wikiLinkRe      = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	trailingParenRe = regexp.MustCompile(`[ \t]*\([^()]*\)$`)
)

// sourceDef is one parsed footnote definition.
type sourceDef struct {
	number  int
	display string
	title   string
}

// ProcessInlineCitations rewrites footnote markers in text to a contiguous
// numbering ordered by first mention, consolidates duplicate sources by
// title, and renders the source list. When enabled is false, or the text
// carries no recognizable footnote definitions, the text passes through
// with at most cosmetic source-list rendering.
func ProcessInlineCitations(text string, enabled bool) string {
	if !enabled {
		return text
	}

	body, section, hasHeading := splitSources(text)

	defs := parseDefinitions(section)
	if !hasHeading && len(defs) == 0 {
		defs = parseDefinitions(text)
		if len(defs) > 0 {
			body = strings.TrimRight(definitionRe.ReplaceAllString(text, ""), " \t\n")
		}
	}

	if len(defs) == 0 {
		return renderWithoutDefinitions(text, body, section, hasHeading)
	}

	order := mentionOrder(body, defs)
	finalOf, entries := consolidate(order, defs)

	body = rewriteMarkers(body, finalOf)
	body = markerPeriodRe.ReplaceAllString(body, "$1")

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%d. %s", i+1, e)
	}
	return body + "\n\n" + renderSourceList(lines)
}

// AddFallbackSources appends a synthesized source list built from the
// retrieval catalog when the answer cites nothing itself. A pre-existing
// citation section suppresses the append to avoid duplicate sections.
func AddFallbackSources(text string, sources []model.SourceRef, enabled bool) string {
	if !enabled || len(sources) == 0 {
		return text
	}
	if headingRe.MatchString(text) {
		return text
	}

	seen := make(map[string]bool)
	var lines []string
	for _, src := range sources {
		key := strings.ToLower(strings.TrimSpace(src.Title))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		lines = append(lines, fmt.Sprintf("%d. [[%s]]", len(lines)+1, strings.TrimSpace(src.Title)))
	}
	if len(lines) == 0 {
		return text
	}
	return strings.TrimRight(text, " \t\n") + "\n\n" + renderSourceList(lines)
}

// splitSources separates the answer body from the trailing sources section.
// The last heading occurrence wins so a body that merely discusses sources
// does not swallow the real section.
func splitSources(text string) (body, section string, found bool) {
	matches := headingRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, "", false
	}
	last := matches[len(matches)-1]
	body = strings.TrimRight(text[:last[0]], " \t\n")
	section = text[last[1]:]
	return body, section, true
}

// parseDefinitions extracts footnote definitions in the order written.
func parseDefinitions(section string) []sourceDef {
	var defs []sourceDef
	seen := make(map[int]bool)
	for _, m := range definitionRe.FindAllStringSubmatch(section, -1) {
		num, err := strconv.Atoi(m[1])
		if err != nil || seen[num] {
			continue
		}
		seen[num] = true
		display, title := parseSourceDisplay(m[2])
		defs = append(defs, sourceDef{number: num, display: display, title: title})
	}
	return defs
}

// parseSourceDisplay normalizes one definition body into its rendered form
// and the title used for duplicate detection. Preference order: markdown
// link, title with trailing URL, wiki-style link, then the raw text with
// trailing parenthetical metadata stripped.
func parseSourceDisplay(raw string) (display, title string) {
	raw = strings.TrimSpace(raw)

	if m := mdLinkRe.FindStringSubmatch(raw); m != nil {
		return fmt.Sprintf("[%s](%s)", m[1], m[2]), m[1]
	}
	if m := titleURLRe.FindStringSubmatch(raw); m != nil && strings.TrimSpace(m[1]) != "" {
		t := strings.TrimSpace(m[1])
		return fmt.Sprintf("[%s](%s)", t, m[2]), t
	}
	if m := wikiLinkRe.FindStringSubmatch(raw); m != nil {
		// [[Note|alias]] links identify the note, not the alias.
		target := m[1]
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		return m[0], target
	}

	stripped := strings.TrimSpace(trailingParenRe.ReplaceAllString(raw, ""))
	if stripped == "" {
		stripped = raw
	}
	return stripped, stripped
}

// mentionOrder returns the original citation numbers in normalization
// order: distinct numbers by first mention in the body, then defined
// numbers never mentioned, in definition order.
func mentionOrder(body string, defs []sourceDef) []int {
	var order []int
	seen := make(map[int]bool)

	for _, marker := range markerRe.FindAllString(body, -1) {
		for _, digits := range numberRe.FindAllString(marker, -1) {
			num, err := strconv.Atoi(digits)
			if err != nil || seen[num] {
				continue
			}
			seen[num] = true
			order = append(order, num)
		}
	}
	for _, def := range defs {
		if !seen[def.number] {
			seen[def.number] = true
			order = append(order, def.number)
		}
	}
	return order
}

// consolidate assigns final numbers in normalization order while merging
// sources whose titles match case-insensitively: later duplicates map to
// the first occurrence's number. Title-only matching can merge distinct
// documents that share a title; the catalog carries no stronger identity.
// Returns the original-to-final number map and the rendered entries in
// final order.
func consolidate(order []int, defs []sourceDef) (map[int]int, []string) {
	byNumber := make(map[int]sourceDef, len(defs))
	for _, def := range defs {
		byNumber[def.number] = def
	}

	finalOf := make(map[int]int, len(order))
	firstByTitle := make(map[string]int)
	var entries []string

	for _, num := range order {
		def, defined := byNumber[num]
		if defined {
			key := strings.ToLower(def.title)
			if final, dup := firstByTitle[key]; dup {
				finalOf[num] = final
				continue
			}
			firstByTitle[key] = len(entries) + 1
		}
		final := len(entries) + 1
		finalOf[num] = final
		if defined {
			entries = append(entries, def.display)
		} else {
			// Mentioned but never defined; keeps numbering contiguous
			// without inventing a source line.
			entries = append(entries, fmt.Sprintf("Source %d", num))
		}
	}
	return finalOf, entries
}

// rewriteMarkers replaces every footnote marker with its renumbered form,
// iterating to a fixed point so adjacent markers left behind by one pass
// are picked up by the next.
func rewriteMarkers(body string, finalOf map[int]int) string {
	for i := 0; i < 10; i++ {
		rewritten := markerRe.ReplaceAllStringFunc(body, func(marker string) string {
			var finals []int
			seen := make(map[int]bool)
			for _, digits := range numberRe.FindAllString(marker, -1) {
				num, err := strconv.Atoi(digits)
				if err != nil {
					continue
				}
				final, ok := finalOf[num]
				if !ok || seen[final] {
					continue
				}
				seen[final] = true
				finals = append(finals, final)
			}
			if len(finals) == 0 {
				return marker
			}
			sort.Ints(finals)
			parts := make([]string, len(finals))
			for i, n := range finals {
				parts[i] = strconv.Itoa(n)
			}
			return "[" + strings.Join(parts, ", ") + "]"
		})
		if rewritten == body {
			break
		}
		body = rewritten
	}
	return body
}

// renderWithoutDefinitions handles text with no footnote definitions: an
// existing bullet-style source section is re-rendered as-is, anything else
// passes through untouched.
func renderWithoutDefinitions(text, body, section string, hasHeading bool) string {
	if !hasHeading {
		return text
	}
	var lines []string
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return text
	}
	return body + "\n\n" + renderSourceList(lines)
}

// renderSourceList renders the source lines as a collapsible section.
func renderSourceList(lines []string) string {
	var b strings.Builder
	b.WriteString(sourcesHeading)
	b.WriteString("\n\n<details>\n<summary>Sources (")
	b.WriteString(strconv.Itoa(len(lines)))
	b.WriteString(")</summary>\n\n")
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n</details>")
	return b.String()
}
