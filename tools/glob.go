// Glob pattern matching over vault-relative paths.
//
// Supports ** for arbitrary directory depth on top of filepath.Match.

package tools

import (
	"path/filepath"
	"strings"
)

// matchGlobPattern matches a path against a glob pattern with ** support.
func matchGlobPattern(path, pattern string) bool {
	// Normalize separators
	path = filepath.ToSlash(path)
	pattern = filepath.ToSlash(pattern)

	parts := strings.Split(pattern, "**")

	if len(parts) == 1 {
		// No **, use simple match
		return matchPattern(pattern, path)
	}

	// **/*.md means any directory depth followed by .md files
	// work/**/*.md means work/ then any depth then .md files

	// Check prefix (before first **)
	prefix := strings.TrimSuffix(parts[0], "/")
	if prefix != "" && !strings.HasPrefix(path, prefix) {
		return false
	}

	// Check suffix (after last **)
	suffix := strings.TrimPrefix(parts[len(parts)-1], "/")
	if suffix != "" {
		if strings.Contains(suffix, "/") {
			// Suffix has directory components
			if !strings.HasSuffix(path, suffix) {
				if !matchPattern("*/"+suffix, "/"+path) {
					return false
				}
			}
		} else {
			// Suffix is just a filename pattern
			if !matchPattern(suffix, filepath.Base(path)) {
				return false
			}
		}
	}

	return true
}

// matchPattern wraps filepath.Match, returning false on error.
func matchPattern(pattern, name string) bool {
	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}
