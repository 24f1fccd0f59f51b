// Fallback recovery path.
//
// When the agent loop fails with a non-cancellation error the request is
// re-run through a simpler non-agentic path: one retrieval, one completion,
// no tool loop. If that also fails, both errors surface together since the
// first failure is usually the more diagnostic one.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/notewell/notewell/citations"
	"github.com/notewell/notewell/llm"
	"github.com/notewell/notewell/tools"
)

// runFallback re-executes the question through the non-agentic path after
// a loop-fatal error.
func (a *Agent) runFallback(ctx context.Context, question string, loopErr error, tracker *ReasoningTracker, run *runState, signal *CancelSignal, start time.Time) Response {
	tracker.AddStep("Agent loop failed, answering directly", "", true)

	answer, err := a.AnswerDirect(ctx, question, run)
	if err != nil {
		resp := a.response(RunFailed, "", tracker, run, start)
		resp.Error = fmt.Sprintf("%s; fallback also failed: %s", userFacingError(loopErr), userFacingError(err))
		return resp
	}

	full := tracker.Marker() + "\n" + answer
	a.reveal(full)
	a.persist(ctx, question, full, signal)

	resp := a.response(RunSuccess, full, tracker, run, start)
	resp.Metadata.FallbackUsed = true
	return resp
}

// AnswerDirect answers a question without the tool loop: a single vault
// retrieval (when the search tool is registered) followed by a single
// completion over the context-before-question transcript.
func (a *Agent) AnswerDirect(ctx context.Context, question string, run *runState) (string, error) {
	if run == nil {
		run = newRunState()
	}

	prompt := question
	if tool, ok := a.registry.Get(tools.VaultSearchName); ok {
		args, err := json.Marshal(map[string]interface{}{"query": question})
		if err == nil {
			result, err := tools.ExecuteOnce(ctx, tool, args)
			if err == nil && result.Success() {
				if search, perr := tools.ParseSearchResult(result.Output); perr == nil {
					run.addSources(search.Sources)
					if block := search.ContextBlock(); block != "" {
						prompt = contextBeforeQuestion(block, question)
					}
				}
			}
		}
	}

	messages := []llm.ChatMessage{
		llm.SystemMessage(a.config.SystemPrompt),
		llm.UserMessage(prompt),
	}
	content, usage, err := a.client.ChatWithUsage(ctx, messages)
	if err != nil {
		return "", err
	}
	run.mu.Lock()
	run.llmCalls++
	run.mu.Unlock()
	if usage != nil {
		run.mu.Lock()
		run.usage.Add(usage)
		run.mu.Unlock()
	}

	answer := citations.ProcessInlineCitations(content, a.config.InlineCitations)
	answer = citations.AddFallbackSources(answer, a.sources(run), a.config.InlineCitations)
	return answer, nil
}

// userFacingError maps provider errors to actionable messages.
// Authentication failures get a distinct hint instead of a raw status.
func userFacingError(err error) string {
	if err == nil {
		return ""
	}
	if llm.IsAuthError(err) {
		return fmt.Sprintf("authentication failed (%v); check the provider API key", err)
	}
	return err.Error()
}
