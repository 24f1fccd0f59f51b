// Package jsonx provides JSON extraction and repair utilities for LLM output.
//
// Models frequently emit JSON embedded in prose, wrapped in markdown fences,
// or with minor structural damage (truncated argument streams, stray braces).
// This package rescues what it can instead of failing the whole turn.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractObject finds and returns the JSON object portion of a response
// string. It handles common LLM response patterns:
// 1. Pure JSON response - returns the full response
// 2. JSON wrapped in markdown code blocks (```json ... ```)
// 3. JSON object embedded in text - finds first '{' and last '}'
//
// Limitations:
// - Only handles JSON objects, not arrays
// - Uses simple brace matching, not full JSON parsing
func ExtractObject(response string) (string, error) {
	response = stripMarkdownCodeBlocks(response)

	var test interface{}
	if err := json.Unmarshal([]byte(response), &test); err == nil {
		return response, nil
	}

	start := strings.Index(response, "{")
	if start != -1 {
		end := strings.LastIndex(response, "}")
		if end != -1 && end > start {
			jsonStr := response[start : end+1]
			if err := json.Unmarshal([]byte(jsonStr), &test); err == nil {
				return jsonStr, nil
			}
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

// ParseArguments parses a tool-call argument string into a map. The input
// is the concatenation of streamed argument fragments, which may be empty,
// a degenerate "{}", valid JSON, or JSON surrounded by junk. Failure returns
// an empty map plus the error so callers can proceed with repaired arguments.
func ParseArguments(raw string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "{}" {
		return map[string]interface{}{}, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &args); err == nil {
		if args == nil {
			args = map[string]interface{}{}
		}
		return args, nil
	}

	// Sloppy input: try to cut a valid object out of it.
	extracted, err := ExtractObject(trimmed)
	if err != nil {
		return map[string]interface{}{}, err
	}
	if err := json.Unmarshal([]byte(extracted), &args); err != nil {
		return map[string]interface{}{}, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// stripMarkdownCodeBlocks removes markdown code block markers from a response.
// Handles patterns like ```json\n...\n``` or ```\n...\n```
func stripMarkdownCodeBlocks(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimSpace(trimmed)
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	return trimmed
}
