package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newTestVault builds a small vault on disk.
func newTestVault(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"inbox.md":             "capture everything here",
		"work/weekly-plan.md":  "ship the decoder this week",
		"work/standup.md":      "daily sync notes",
		"plans/roadmap.md":     "Q3 goals",
		".obsidian/config.md":  "hidden tool config",
		"attachments/logo.png": "not markdown",
	}
	for path, content := range files {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestNoteReadTool(t *testing.T) {
	root := newTestVault(t)
	tool := NewNoteReadTool(root, DefaultMaxNoteSize)

	args, _ := json.Marshal(map[string]string{"path": "work/weekly-plan.md"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success() {
		t.Fatalf("unexpected failure: %v", result.Error)
	}
	if !strings.Contains(result.Output, "# weekly-plan") {
		t.Errorf("title header missing: %q", result.Output)
	}
	if !strings.Contains(result.Output, "ship the decoder") {
		t.Errorf("content missing: %q", result.Output)
	}
}

func TestNoteReadToolDefaultsExtension(t *testing.T) {
	root := newTestVault(t)
	tool := NewNoteReadTool(root, DefaultMaxNoteSize)

	args, _ := json.Marshal(map[string]string{"path": "inbox"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil || !result.Success() {
		t.Fatalf("expected .md defaulting to succeed: %v %v", err, result.Error)
	}
}

func TestNoteReadToolMissingNote(t *testing.T) {
	root := newTestVault(t)
	tool := NewNoteReadTool(root, DefaultMaxNoteSize)

	args, _ := json.Marshal(map[string]string{"path": "nope.md"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("missing note is a tool-level failure: %v", err)
	}
	if result.Success() {
		t.Error("expected failure for missing note")
	}
}

func TestNoteReadToolRefusesEscape(t *testing.T) {
	root := newTestVault(t)
	tool := NewNoteReadTool(root, DefaultMaxNoteSize)

	args, _ := json.Marshal(map[string]string{"path": "../outside.md"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success() {
		t.Error("path escaping the vault must be refused")
	}
}

func TestNoteToolsRefuseSiblingPrefixEscape(t *testing.T) {
	root := newTestVault(t)
	// A sibling directory whose name extends the vault root's name must
	// not be reachable, neither for reads nor for note creation.
	sneaky := "../" + filepath.Base(root) + "2/sneaky"

	readArgs, _ := json.Marshal(map[string]string{"path": sneaky})
	result, err := NewNoteReadTool(root, DefaultMaxNoteSize).Execute(context.Background(), readArgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success() {
		t.Error("read into a sibling directory must be refused")
	}

	appendArgs, _ := json.Marshal(map[string]string{"path": sneaky, "content": "x"})
	result, err = NewNoteAppendTool(root, DefaultMaxNoteSize).Execute(context.Background(), appendArgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success() {
		t.Error("write into a sibling directory must be refused")
	}
}

func TestNoteListTool(t *testing.T) {
	root := newTestVault(t)
	tool := NewNoteListTool(root, DefaultListMaxResults)

	tests := []struct {
		name    string
		pattern string
		want    []string
		exclude []string
	}{
		{
			"all notes",
			"**",
			[]string{"inbox.md", "work/weekly-plan.md", "plans/roadmap.md"},
			[]string{".obsidian", "logo.png"},
		},
		{
			"subdirectory",
			"work/**",
			[]string{"work/weekly-plan.md", "work/standup.md"},
			[]string{"inbox.md", "plans/roadmap.md"},
		},
		{
			"top level only",
			"*.md",
			[]string{"inbox.md"},
			[]string{"work/weekly-plan.md"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, _ := json.Marshal(map[string]string{"pattern": tt.pattern})
			result, err := tool.Execute(context.Background(), args)
			if err != nil || !result.Success() {
				t.Fatalf("execute failed: %v %v", err, result.Error)
			}
			for _, want := range tt.want {
				if !strings.Contains(result.Output, want) {
					t.Errorf("missing %q in:\n%s", want, result.Output)
				}
			}
			for _, excl := range tt.exclude {
				if strings.Contains(result.Output, excl) {
					t.Errorf("unexpected %q in:\n%s", excl, result.Output)
				}
			}
		})
	}
}

func TestNoteAppendTool(t *testing.T) {
	root := newTestVault(t)
	tool := NewNoteAppendTool(root, DefaultMaxNoteSize)

	args, _ := json.Marshal(map[string]string{"path": "journal/today", "content": "- remembered something\n"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil || !result.Success() {
		t.Fatalf("append failed: %v %v", err, result.Error)
	}

	content, err := os.ReadFile(filepath.Join(root, "journal", "today.md"))
	if err != nil {
		t.Fatalf("note not created: %v", err)
	}
	if string(content) != "- remembered something\n" {
		t.Errorf("unexpected content: %q", content)
	}

	// Second append extends the note.
	if _, err := tool.Execute(context.Background(), args); err != nil {
		t.Fatal(err)
	}
	content, _ = os.ReadFile(filepath.Join(root, "journal", "today.md"))
	if strings.Count(string(content), "remembered") != 2 {
		t.Errorf("append did not extend note: %q", content)
	}
}
