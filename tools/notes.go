// Note vault tools - read, list and append operations on vault notes.
//
// Information Hiding:
// - Vault layout and path resolution hidden
// - Path confinement checks hidden
// - File I/O error handling abstracted

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Registered note tool names.
const (
	NoteReadName   = "note_read"
	NoteListName   = "note_list"
	NoteAppendName = "note_append"
)

// resolveNotePath maps a vault-relative note path to an absolute path,
// defaulting the markdown extension and refusing paths that escape the
// vault root.
func resolveNotePath(root, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if filepath.Ext(path) == "" {
		path += ".md"
	}
	abs := filepath.Join(root, filepath.FromSlash(path))
	if !withinVault(abs, root) {
		return "", fmt.Errorf("path '%s' is outside the vault", path)
	}
	return abs, nil
}

// noteTitle derives a display title from a vault-relative path.
func noteTitle(relPath string) string {
	base := filepath.Base(relPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NoteReadTool reads one note from the vault.
type NoteReadTool struct {
	BaseTool
	root         string
	maxSizeBytes int64
}

// NewNoteReadTool creates a note read tool rooted at the vault directory.
func NewNoteReadTool(root string, maxSizeBytes int64) *NoteReadTool {
	return &NoteReadTool{root: root, maxSizeBytes: maxSizeBytes}
}

// Metadata returns the tool metadata.
func (t *NoteReadTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        NoteReadName,
		Description: "Read the full contents of a note from the vault by its path. The .md extension may be omitted.",
		Parameters: []ToolParameter{
			{Name: "path", ParamType: "string", Description: "Vault-relative path of the note", Required: true},
		},
	}
}

type noteReadArgs struct {
	Path string `json:"path"`
}

// Validate validates the arguments.
func (t *NoteReadTool) Validate(args json.RawMessage) error {
	var a noteReadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(a.Path) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// Execute reads the note.
func (t *NoteReadTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a noteReadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	abs, err := resolveNotePath(t.root, a.Path)
	if err != nil {
		return FailureResult(err), nil
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return FailureResultf("note does not exist: %s", a.Path), nil
	}
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read note metadata: %w", err)), nil
	}
	if info.Size() > t.maxSizeBytes {
		return FailureResultf("note too large: %d bytes (max: %d bytes)", info.Size(), t.maxSizeBytes), nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read note: %w", err)), nil
	}

	return SuccessResult(fmt.Sprintf("# %s\n\n%s", noteTitle(a.Path), string(content))), nil
}

// NoteListTool lists notes in the vault matching a glob pattern.
type NoteListTool struct {
	BaseTool
	root       string
	maxResults int
}

// NewNoteListTool creates a note list tool rooted at the vault directory.
// If maxResults <= 0 a hard limit applies.
func NewNoteListTool(root string, maxResults int) *NoteListTool {
	if maxResults <= 0 {
		maxResults = AbsoluteListMaxResults
	}
	return &NoteListTool{root: root, maxResults: maxResults}
}

const (
	// DefaultListMaxResults is the default maximum notes per listing.
	DefaultListMaxResults = 100
	// AbsoluteListMaxResults is the hard limit to prevent excessive memory.
	AbsoluteListMaxResults = 1000
)

// Metadata returns the tool metadata.
func (t *NoteListTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        NoteListName,
		Description: "List vault notes matching a glob pattern. Returns paths only (no content). Hidden directories are skipped. Use for discovery, then note_read to load content.",
		Parameters: []ToolParameter{
			{Name: "pattern", ParamType: "string", Description: "Glob pattern over vault-relative paths (e.g., 'work/**', '*.md')", Required: false},
			{Name: "max_results", ParamType: "integer", Description: fmt.Sprintf("Maximum notes to return (default: %d)", DefaultListMaxResults), Required: false},
		},
	}
}

type noteListArgs struct {
	Pattern    string `json:"pattern"`
	MaxResults *int   `json:"max_results"`
}

// Execute lists matching notes.
// Errors are returned via ToolResult to allow user-friendly messages.
func (t *NoteListTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a noteListArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResultf("invalid arguments: %v", err), nil
	}

	pattern := strings.TrimPrefix(a.Pattern, "./")
	if pattern == "" {
		pattern = "**"
	}

	maxResults := DefaultListMaxResults
	if a.MaxResults != nil && *a.MaxResults > 0 {
		maxResults = *a.MaxResults
	}
	if maxResults > t.maxResults {
		maxResults = t.maxResults
	}

	matches, err := t.findNotes(ctx, pattern, maxResults)
	if err != nil {
		return FailureResultf("%v", err), nil
	}

	if len(matches) == 0 {
		return SuccessResult(fmt.Sprintf("No notes found matching '%s'", pattern)), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Found %d notes matching '%s':\n", len(matches), pattern)
	for _, m := range matches {
		fmt.Fprintln(&result, m)
	}
	if len(matches) >= maxResults {
		fmt.Fprintf(&result, "\n(limited to %d results)", maxResults)
	}
	return SuccessResult(result.String()), nil
}

// findNotes walks the vault collecting markdown files that match.
func (t *NoteListTool) findNotes(ctx context.Context, pattern string, maxResults int) ([]string, error) {
	info, err := os.Stat(t.root)
	if err != nil {
		return nil, fmt.Errorf("vault not found: %s", t.root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault is not a directory: %s", t.root)
	}

	var matches []string
	err = filepath.WalkDir(t.root, func(path string, entry os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") && path != t.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".md") {
			return nil
		}

		relPath, err := filepath.Rel(t.root, path)
		if err != nil {
			return nil
		}
		if matchGlobPattern(relPath, pattern) {
			matches = append(matches, filepath.ToSlash(relPath))
			if len(matches) >= maxResults {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return matches, err
	}

	sort.Strings(matches)
	return matches, nil
}

// NoteAppendTool appends content to a note, creating it if needed.
type NoteAppendTool struct {
	BaseTool
	root         string
	maxSizeBytes int64
}

// NewNoteAppendTool creates a note append tool rooted at the vault directory.
func NewNoteAppendTool(root string, maxSizeBytes int64) *NoteAppendTool {
	return &NoteAppendTool{root: root, maxSizeBytes: maxSizeBytes}
}

// Metadata returns the tool metadata.
func (t *NoteAppendTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        NoteAppendName,
		Description: "Append content to a vault note. Creates the note if it doesn't exist.",
		Parameters: []ToolParameter{
			{Name: "path", ParamType: "string", Description: "Vault-relative path of the note", Required: true},
			{Name: "content", ParamType: "string", Description: "Content to append", Required: true},
		},
	}
}

type noteAppendArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Validate validates the arguments.
func (t *NoteAppendTool) Validate(args json.RawMessage) error {
	var a noteAppendArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(a.Path) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// Execute appends to the note.
func (t *NoteAppendTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a noteAppendArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	if int64(len(a.Content)) > t.maxSizeBytes {
		return FailureResultf("content too large: %d bytes (max: %d bytes)", len(a.Content), t.maxSizeBytes), nil
	}

	abs, err := resolveNotePath(t.root, a.Path)
	if err != nil {
		return FailureResult(err), nil
	}
	if !withinVaultForWrite(abs, t.root) {
		return FailureResultf("writing to '%s' is not allowed", a.Path), nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return FailureResult(fmt.Errorf("failed to create directory: %w", err)), nil
	}

	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to open note: %w", err)), nil
	}
	defer f.Close()

	if _, err := f.WriteString(a.Content); err != nil {
		return FailureResult(fmt.Errorf("failed to write to note: %w", err)), nil
	}

	return SuccessResult(fmt.Sprintf("Appended %d bytes to %s", len(a.Content), a.Path)), nil
}
