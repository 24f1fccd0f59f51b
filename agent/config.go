// Agent configuration types.
//
// Information Hiding:
// - Default values hidden

package agent

import (
	"time"

	"github.com/notewell/notewell/tools"
)

// Config holds agent configuration.
type Config struct {
	// Name identifies the agent in logs and update streams.
	Name string

	// SystemPrompt guides the agent's behavior.
	SystemPrompt string

	// Tools available to this agent.
	Tools []tools.Tool

	// MaxIterations caps the reason-act-observe cycle.
	MaxIterations int

	// LoopTimeout is the wall-clock budget for one run, checked at
	// iteration boundaries. An in-flight model call is never cut short
	// by it; only the next iteration is prevented.
	LoopTimeout time.Duration

	// InlineCitations enables footnote citation normalization on the
	// final answer.
	InlineCitations bool

	// RevealChunkSize is the increment, in runes, used to progressively
	// reveal the finalized answer to the update callback.
	RevealChunkSize int
}

// DefaultConfig returns a basic agent configuration.
func DefaultConfig() Config {
	return Config{
		Name:            "notewell",
		SystemPrompt:    "You are a helpful assistant for a personal note vault.",
		Tools:           []tools.Tool{},
		MaxIterations:   10,
		LoopTimeout:     4 * time.Minute,
		InlineCitations: true,
		RevealChunkSize: 150,
	}
}

// HasTools returns true if the agent has tools configured.
func (c *Config) HasTools() bool {
	return len(c.Tools) > 0
}

func (c *Config) maxIterations() int {
	if c.MaxIterations <= 0 {
		return 10
	}
	return c.MaxIterations
}

func (c *Config) loopTimeout() time.Duration {
	if c.LoopTimeout <= 0 {
		return 4 * time.Minute
	}
	return c.LoopTimeout
}

func (c *Config) revealChunkSize() int {
	if c.RevealChunkSize <= 0 {
		return 150
	}
	return c.RevealChunkSize
}
