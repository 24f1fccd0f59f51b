// Package agent implements the vault assistant's agent loop.
//
// Contains the response types shared by the loop and fallback paths.
package agent

import (
	"context"

	"github.com/notewell/notewell/llm"
	"github.com/notewell/notewell/model"
)

// RunStatus indicates how an agent run terminated.
type RunStatus int

const (
	// RunSuccess means the model produced a terminal answer.
	RunSuccess RunStatus = iota
	// RunInterrupted means the cancellation signal stopped the run.
	RunInterrupted
	// RunMaxIterations means the iteration cap was hit; the answer is a
	// best-effort summary of recorded steps.
	RunMaxIterations
	// RunTimedOut means the wall-clock budget elapsed; the answer is a
	// best-effort summary of recorded steps.
	RunTimedOut
	// RunFailed means both the agent loop and the fallback path failed.
	RunFailed
)

// String returns the string representation of the run status.
func (s RunStatus) String() string {
	switch s {
	case RunSuccess:
		return "success"
	case RunInterrupted:
		return "interrupted"
	case RunMaxIterations:
		return "max_iterations"
	case RunTimedOut:
		return "timed_out"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Metadata contains metadata about one agent run.
type Metadata struct {
	ExecutionTimeMs uint64
	ToolCalls       []model.ToolCallMetric
	TokenUsage      *llm.TokenUsage
	LLMCalls        int
	FallbackUsed    bool
	Warnings        []string
}

// Response is the result of one agent run.
type Response struct {
	Status       RunStatus
	Answer       string
	Error        string // populated for RunFailed
	WasTruncated bool
	Sources      []model.SourceRef
	Steps        []ReasoningStep
	Metadata     Metadata
}

// IsSuccess checks if the run produced a usable answer.
func (r Response) IsSuccess() bool {
	return r.Status == RunSuccess
}

// ExchangeStore persists a finalized question/answer pair. The agent hands
// over fully reconciled text only; the storage format is the store's
// concern.
type ExchangeStore interface {
	SaveExchange(ctx context.Context, input, output string) error
}
