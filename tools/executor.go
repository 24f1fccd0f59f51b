// Retrying tool execution for the agent loop.
//
// Information Hiding:
// - Retry strategy and backoff schedule hidden
// - Per-attempt timeout enforcement hidden
// - Failure classification (vault errors vs transient) hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Executor runs tools with per-attempt timeouts and transient-failure
// retries. Vault confinement and validation failures are never retried;
// they fail the same way every time.
type Executor struct {
	config ToolConfig
}

// NewExecutor creates a new tool executor with the given configuration.
func NewExecutor(config ToolConfig) *Executor {
	return &Executor{config: config}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return &Executor{config: DefaultToolConfig()}
}

// Execute runs a tool with retry logic. Each attempt is bounded by the
// configured attempt timeout; backoff between attempts respects ctx.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	var lastErr error
	toolName := tool.Metadata().Name
	maxRetries := e.config.Retries()

	for attempt := uint32(0); attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := e.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ToolResult{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := e.executeAttempt(ctx, tool, args)
		if err != nil {
			lastErr = err
			continue
		}

		if result.Success() {
			return result, nil
		}

		if !e.shouldRetry(result) {
			return result, nil
		}

		lastErr = result.Error
	}

	// All retries exhausted
	errMsg := "unknown error"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	return FailureResultf("tool '%s' failed after %d attempts: %s", toolName, maxRetries, errMsg), nil
}

// executeAttempt bounds a single attempt by the configured timeout so a
// hung tool (a stalled web fetch, a slow vault scan) cannot absorb the
// whole run budget.
func (e *Executor) executeAttempt(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.config.AttemptTimeout())
	defer cancel()

	return tool.Execute(attemptCtx, args)
}

// calculateBackoff returns the backoff duration for the given attempt.
func (e *Executor) calculateBackoff(attempt uint32) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)

	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// shouldRetry determines if a failure is worth another attempt.
func (e *Executor) shouldRetry(result ToolResult) bool {
	if result.Error == nil {
		return true
	}

	errLower := strings.ToLower(result.Error.Error())

	// Deterministic failures: bad arguments, confinement refusals, and
	// missing notes fail identically on every attempt.
	nonRetryable := []string{"validation", "not allowed", "permission", "empty", "outside the vault", "not found"}
	for _, s := range nonRetryable {
		if strings.Contains(errLower, s) {
			return false
		}
	}

	// Always retry timeouts and network errors
	retryable := []string{"timeout", "deadline", "connection", "network"}
	for _, s := range retryable {
		if strings.Contains(errLower, s) {
			return true
		}
	}

	// Default: retry
	return true
}

// ExecuteOnce runs a tool once without retries.
func ExecuteOnce(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	// Validate first
	if err := tool.Validate(args); err != nil {
		return FailureResult(fmt.Errorf("validation failed: %w", err)), nil
	}

	return tool.Execute(ctx, args)
}
