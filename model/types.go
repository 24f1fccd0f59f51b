// Package model provides domain types shared across packages.
package model

// SourceRef identifies one document eligible for citation. The catalog
// handed to an agent run is read-only; numbering is assigned later from
// the order sources are actually referenced in the answer.
type SourceRef struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

// ToolCallMetric contains metrics about a tool invocation.
// Used for tracking and analytics across agent runs.
type ToolCallMetric struct {
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}
