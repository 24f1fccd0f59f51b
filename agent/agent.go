// Agent loop implementation.
//
// This is THE canonical execution path for vault questions.
// All agentic answering goes through this module.
//
// Information Hiding:
// - Loop state machine internals hidden
// - LLM streaming coordination hidden
// - Tool dispatch and retrieval post-processing hidden
// - Retry and fallback policy hidden

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/notewell/notewell/citations"
	"github.com/notewell/notewell/llm"
	"github.com/notewell/notewell/model"
	"github.com/notewell/notewell/stream"
	"github.com/notewell/notewell/tools"
)

const (
	// overloadRetries caps retries for overloaded-class provider errors.
	// Backoff grows linearly: 1s, 2s.
	overloadRetries = 2
	overloadBackoff = time.Second

	interruptedNotice = "\n\n_Interrupted._"
)

// Agent answers vault questions through an iterate-reason-act-observe loop.
type Agent struct {
	config   Config
	client   *llm.Client
	registry *tools.Registry
	executor *tools.Executor
	store    ExchangeStore
	onUpdate func(text string)
}

// New creates a new agent with the given configuration and provider.
func New(config Config, provider llm.Provider) *Agent {
	registry := tools.NewRegistry()
	for _, tool := range config.Tools {
		_ = registry.Register(tool) // Ignore duplicate errors - caller's responsibility
	}

	return &Agent{
		config:   config,
		client:   llm.NewClient(provider),
		registry: registry,
		executor: tools.NewDefaultExecutor(),
	}
}

// WithToolConfig overrides the tool execution configuration.
func (a *Agent) WithToolConfig(config tools.ToolConfig) *Agent {
	a.executor = tools.NewExecutor(config)
	return a
}

// WithStore enables persistence of finalized exchanges.
func (a *Agent) WithStore(store ExchangeStore) *Agent {
	a.store = store
	return a
}

// OnUpdate registers a callback receiving the accumulated display text
// whenever it changes: streamed content, reasoning re-renders and the
// progressive reveal of the final answer.
//
// The callback is invoked from the reasoning timer goroutine as well as
// the goroutine consuming the stream, so it must be safe for concurrent
// use.
func (a *Agent) OnUpdate(fn func(text string)) *Agent {
	a.onUpdate = fn
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string {
	return a.config.Name
}

// runState is the mutable state shared between the chunk-consumption path
// and the reasoning timer for one run. Each run owns its own instance.
type runState struct {
	mu      sync.Mutex
	visible string

	sources     []model.SourceRef
	seenSource  map[string]bool
	recallTerms []string
	seenTerm    map[string]bool

	metrics   []model.ToolCallMetric
	llmCalls  int
	usage     llm.TokenUsage
	truncated bool
	warnings  []string
}

func newRunState() *runState {
	return &runState{
		seenSource: make(map[string]bool),
		seenTerm:   make(map[string]bool),
	}
}

func (r *runState) setVisible(text string) {
	r.mu.Lock()
	r.visible = text
	r.mu.Unlock()
}

func (r *runState) Visible() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

func (r *runState) addSources(refs []model.SourceRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range refs {
		key := ref.Path
		if key == "" {
			key = strings.ToLower(ref.Title)
		}
		if key == "" || r.seenSource[key] {
			continue
		}
		r.seenSource[key] = true
		r.sources = append(r.sources, ref)
	}
}

func (r *runState) addRecallTerms(terms []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, term := range terms {
		key := strings.ToLower(strings.TrimSpace(term))
		if key == "" || r.seenTerm[key] {
			continue
		}
		r.seenTerm[key] = true
		r.recallTerms = append(r.recallTerms, strings.TrimSpace(term))
	}
}

func (r *runState) currentRecallTerms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	terms := make([]string, len(r.recallTerms))
	copy(terms, r.recallTerms)
	return terms
}

// Run answers one question, optionally continuing a prior transcript.
// signal may be nil when the caller has no cancellation surface.
func (a *Agent) Run(ctx context.Context, question string, history []llm.ChatMessage, signal *CancelSignal) Response {
	start := time.Now()
	run := newRunState()
	tracker := NewReasoningTracker()

	conversation := a.assembleTranscript(question, history)
	defs := toolDefinitions(a.registry)

	// The timer re-renders the reasoning marker and doubles as the abort
	// watchdog: first observer of the cancellation claims the notice.
	tracker.Start(func() {
		if signal.Cancelled() {
			if signal.ClaimNotice() {
				a.emit(tracker.Marker() + "\n" + run.Visible() + interruptedNotice)
			}
			tracker.Complete()
			return
		}
		a.emit(tracker.Marker() + "\n" + run.Visible())
	})
	defer tracker.Complete()

	maxIterations := a.config.maxIterations()
	for iteration := 0; iteration < maxIterations; iteration++ {
		if signal.Cancelled() {
			return a.finishInterrupted(ctx, question, tracker, run, signal, start)
		}
		if time.Since(start) > a.config.loopTimeout() {
			return a.finishBudget(ctx, question, tracker, run, signal, start, RunTimedOut)
		}

		result, calls, err := a.streamTurn(ctx, conversation, defs, run, tracker, signal)
		run.llmCalls++
		if result.Usage != nil {
			run.usage.Add(result.Usage)
		}
		if result.WasTruncated {
			run.truncated = true
		}
		run.warnings = append(run.warnings, result.Warnings...)

		if err != nil {
			if signal.Cancelled() || errors.Is(err, context.Canceled) {
				return a.finishInterrupted(ctx, question, tracker, run, signal, start)
			}
			return a.runFallback(ctx, question, err, tracker, run, signal, start)
		}
		if signal.Cancelled() {
			return a.finishInterrupted(ctx, question, tracker, run, signal, start)
		}

		if len(calls) == 0 {
			conversation = append(conversation, llm.AssistantMessage(result.Content))
			return a.finishSuccess(ctx, question, result.Content, tracker, run, signal, start)
		}

		conversation = append(conversation, llm.ChatMessage{
			Role:      "assistant",
			Content:   result.Content,
			ToolCalls: toolCallIntents(calls),
		})

		var contextBlocks []string
		for _, call := range calls {
			if signal.Cancelled() {
				return a.finishInterrupted(ctx, question, tracker, run, signal, start)
			}
			outcome := a.dispatch(ctx, call, run, tracker)
			conversation = append(conversation, llm.ToolMessage(call.ID, outcome.forModel))
			if outcome.contextBlock != "" {
				contextBlocks = append(contextBlocks, outcome.contextBlock)
			}
		}

		// Retrieval grounding stays salient when the context block
		// precedes the restated question in the next turn.
		if len(contextBlocks) > 0 {
			conversation = append(conversation,
				llm.UserMessage(contextBeforeQuestion(strings.Join(contextBlocks, "\n\n"), question)))
		}
	}

	return a.finishBudget(ctx, question, tracker, run, signal, start, RunMaxIterations)
}

// assembleTranscript builds the starting conversation for a run.
func (a *Agent) assembleTranscript(question string, history []llm.ChatMessage) []llm.ChatMessage {
	conversation := make([]llm.ChatMessage, 0, len(history)+2)
	if len(history) == 0 || history[0].Role != "system" {
		prompt := a.config.SystemPrompt
		if a.registry.Has(tools.VaultSearchName) {
			prompt += "\n\nCite vault notes with footnote markers ([^1]) and list them under a Sources heading as [[Note Title]] entries."
		}
		conversation = append(conversation, llm.SystemMessage(prompt))
	}
	conversation = append(conversation, history...)
	conversation = append(conversation, llm.UserMessage(question))
	return conversation
}

// streamTurn invokes the model once, retrying overloaded-class errors with
// linearly increasing backoff. All other errors propagate immediately.
func (a *Agent) streamTurn(ctx context.Context, conversation []llm.ChatMessage, defs []llm.ToolDefinition, run *runState, tracker *ReasoningTracker, signal *CancelSignal) (stream.Result, []stream.NativeToolCall, error) {
	var lastErr error
	for attempt := 0; attempt <= overloadRetries; attempt++ {
		if attempt > 0 {
			tracker.AddStep(fmt.Sprintf("Provider overloaded, retrying (%d/%d)", attempt, overloadRetries), "", true)
			select {
			case <-ctx.Done():
				return stream.Result{}, nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * overloadBackoff):
			}
		}

		result, calls, err := a.streamOnce(ctx, conversation, defs, run, tracker, signal)
		if err == nil {
			return result, calls, nil
		}
		if !llm.IsOverloaded(err) {
			return result, calls, err
		}
		lastErr = err
	}
	return stream.Result{}, nil, lastErr
}

// streamOnce runs a single streamed model call through the decoder.
// A cancelled run drains the channel so the producer finishes and the
// decoder is always closed cleanly.
func (a *Agent) streamOnce(ctx context.Context, conversation []llm.ChatMessage, defs []llm.ToolDefinition, run *runState, tracker *ReasoningTracker, signal *CancelSignal) (stream.Result, []stream.NativeToolCall, error) {
	chunks := make(chan llm.StreamChunk, 64)
	acc := stream.NewAccumulator()
	dec := stream.NewDecoder(acc).OnChange(func(current string) {
		run.setVisible(current)
		a.emit(tracker.Marker() + "\n" + current)
	})

	errCh := make(chan error, 1)
	go func() {
		defer close(chunks)
		errCh <- a.client.StreamChatWithTools(ctx, conversation, defs, chunks)
	}()

	for chunk := range chunks {
		if signal.Cancelled() {
			for range chunks {
			}
			break
		}
		dec.ProcessChunk(chunk)
	}

	result := dec.Close()
	result.Warnings = append(result.Warnings, acc.Warnings()...)
	if err := <-errCh; err != nil {
		return result, nil, err
	}
	return result, acc.Finalize(), nil
}

// toolOutcome is the transcript- and display-ready form of one dispatch.
type toolOutcome struct {
	forModel     string
	display      string
	contextBlock string
	success      bool
}

// dispatch executes one tool call synchronously. Tool-level failures are
// encoded in the outcome, never raised; only the transcript and reasoning
// trace observe them.
func (a *Agent) dispatch(ctx context.Context, call stream.NativeToolCall, run *runState, tracker *ReasoningTracker) toolOutcome {
	tracker.AddStep(describeCall(call), call.Name, false)

	tool, exists := a.registry.Get(call.Name)
	if !exists {
		tracker.AddStep(fmt.Sprintf("%s failed: unknown tool", call.Name), call.Name, false)
		return toolOutcome{
			forModel: fmt.Sprintf("Tool %q is not available.", call.Name),
			display:  fmt.Sprintf("✗ %s: unknown tool", call.Name),
		}
	}

	args := call.Arguments
	if call.Name == tools.VaultSearchName {
		args = withRecallTerms(args, run.currentRecallTerms())
	}
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("{}")
	}

	started := time.Now()
	result, err := a.executor.Execute(ctx, tool, raw)

	metric := model.ToolCallMetric{
		Name:       call.Name,
		InputSize:  len(raw),
		OutputSize: len(result.Output),
		DurationMs: uint64(time.Since(started).Milliseconds()),
		Success:    err == nil && result.Success(),
	}
	run.mu.Lock()
	run.metrics = append(run.metrics, metric)
	run.mu.Unlock()

	if err != nil || !result.Success() {
		failure := err
		if failure == nil {
			failure = result.Error
		}
		tracker.AddStep(fmt.Sprintf("%s failed: %v", call.Name, failure), call.Name, false)
		return toolOutcome{
			forModel: fmt.Sprintf("Tool %s failed: %v", call.Name, failure),
			display:  fmt.Sprintf("✗ %s: %v", call.Name, failure),
		}
	}

	tracker.AddStep(fmt.Sprintf("Finished %s", call.Name), call.Name, false)
	outcome := toolOutcome{
		forModel: result.Output,
		display:  fmt.Sprintf("✓ %s", call.Name),
		success:  true,
	}

	if call.Name == tools.VaultSearchName {
		if search, perr := tools.ParseSearchResult(result.Output); perr == nil {
			run.addSources(search.Sources)
			run.addRecallTerms(search.RecallTerms)
			if query, ok := call.Arguments["query"].(string); ok {
				run.addRecallTerms([]string{query})
			}
			outcome.contextBlock = search.ContextBlock()
		}
	}
	return outcome
}

// finishSuccess finalizes a terminal answer: stop the tracker, normalize
// citations, reveal progressively and persist the exchange.
func (a *Agent) finishSuccess(ctx context.Context, question, content string, tracker *ReasoningTracker, run *runState, signal *CancelSignal, start time.Time) Response {
	tracker.Complete()

	answer := citations.ProcessInlineCitations(content, a.config.InlineCitations)
	answer = citations.AddFallbackSources(answer, a.sources(run), a.config.InlineCitations)
	full := tracker.Marker() + "\n" + answer

	a.reveal(full)
	a.persist(ctx, question, full, signal)

	return a.response(RunSuccess, full, tracker, run, start)
}

// finishBudget produces the best-effort answer for iteration and timeout
// exhaustion: the recorded step summaries prefixed by the finalized
// reasoning marker, never an empty response.
func (a *Agent) finishBudget(ctx context.Context, question string, tracker *ReasoningTracker, run *runState, signal *CancelSignal, start time.Time, status RunStatus) Response {
	tracker.Complete()

	notice := fmt.Sprintf("Reached the maximum of %d reasoning steps.", a.config.maxIterations())
	if status == RunTimedOut {
		notice = fmt.Sprintf("Reached the time limit of %s.", a.config.loopTimeout())
	}

	var b strings.Builder
	b.WriteString(tracker.Marker())
	b.WriteString("\n")
	b.WriteString(notice)
	b.WriteString(" Here is what I found so far:\n")
	for _, step := range tracker.History() {
		b.WriteString("- ")
		b.WriteString(step.Summary)
		b.WriteString("\n")
	}
	full := b.String()

	a.emit(full)
	a.persist(ctx, question, full, signal)

	return a.response(status, full, tracker, run, start)
}

// finishInterrupted terminates a cancelled run. The interrupted notice is
// emitted by whichever observer claimed it first; if the timer already did,
// this path suppresses its own emission.
func (a *Agent) finishInterrupted(ctx context.Context, question string, tracker *ReasoningTracker, run *runState, signal *CancelSignal, start time.Time) Response {
	tracker.Complete()

	full := tracker.Marker() + "\n" + run.Visible()
	if signal.ClaimNotice() {
		full += interruptedNotice
		a.emit(full)
	}

	if signal.Reason() != CancelNewConversation {
		a.persist(ctx, question, full, signal)
	}

	return a.response(RunInterrupted, full, tracker, run, start)
}

func (a *Agent) response(status RunStatus, answer string, tracker *ReasoningTracker, run *runState, start time.Time) Response {
	run.mu.Lock()
	defer run.mu.Unlock()

	usage := run.usage
	return Response{
		Status:       status,
		Answer:       answer,
		WasTruncated: run.truncated,
		Sources:      append([]model.SourceRef(nil), run.sources...),
		Steps:        tracker.History(),
		Metadata: Metadata{
			ExecutionTimeMs: uint64(time.Since(start).Milliseconds()),
			ToolCalls:       append([]model.ToolCallMetric(nil), run.metrics...),
			TokenUsage:      &usage,
			LLMCalls:        run.llmCalls,
			Warnings:        append([]string(nil), run.warnings...),
		},
	}
}

func (a *Agent) sources(run *runState) []model.SourceRef {
	run.mu.Lock()
	defer run.mu.Unlock()
	return append([]model.SourceRef(nil), run.sources...)
}

// persist hands the finalized exchange to the store. A cancellation that
// started a new conversation suppresses persistence entirely.
func (a *Agent) persist(ctx context.Context, question, answer string, signal *CancelSignal) {
	if a.store == nil || signal.Reason() == CancelNewConversation {
		return
	}
	_ = a.store.SaveExchange(ctx, question, answer) // Best-effort persistence
}

// emit sends one display update.
func (a *Agent) emit(text string) {
	if a.onUpdate != nil {
		a.onUpdate(text)
	}
}

// reveal emits the finalized answer in fixed-size rune increments to keep
// a streaming feel even though the content is already fully known.
func (a *Agent) reveal(text string) {
	if a.onUpdate == nil {
		return
	}
	runes := []rune(text)
	step := a.config.revealChunkSize()
	for i := step; i < len(runes); i += step {
		a.onUpdate(string(runes[:i]))
	}
	a.onUpdate(text)
}

// toolDefinitions converts registry metadata into provider tool schemas.
func toolDefinitions(registry *tools.Registry) []llm.ToolDefinition {
	var defs []llm.ToolDefinition
	for _, meta := range registry.List() {
		properties := make(map[string]interface{}, len(meta.Parameters))
		var required []string
		for _, p := range meta.Parameters {
			properties[p.Name] = map[string]interface{}{
				"type":        p.ParamType,
				"description": p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		parameters := map[string]interface{}{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			parameters["required"] = required
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        meta.Name,
			Description: meta.Description,
			Parameters:  parameters,
		})
	}
	return defs
}

// toolCallIntents converts finalized calls into transcript form.
func toolCallIntents(calls []stream.NativeToolCall) []llm.ToolCall {
	intents := make([]llm.ToolCall, 0, len(calls))
	for _, call := range calls {
		intents = append(intents, llm.ToolCall{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.RawArguments(),
		})
	}
	return intents
}

// withRecallTerms augments local-search arguments with terms recalled from
// earlier searches in the same run, so downstream expansion is not redone.
func withRecallTerms(args map[string]interface{}, terms []string) map[string]interface{} {
	if len(terms) == 0 {
		return args
	}
	if _, exists := args["recall_terms"]; exists {
		return args
	}
	augmented := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		augmented[k] = v
	}
	recall := make([]interface{}, len(terms))
	for i, t := range terms {
		recall[i] = t
	}
	augmented["recall_terms"] = recall
	return augmented
}

// describeCall renders a one-line step summary for a tool call.
func describeCall(call stream.NativeToolCall) string {
	if query, ok := call.Arguments["query"].(string); ok && query != "" {
		return fmt.Sprintf("Running %s for %q", call.Name, query)
	}
	if path, ok := call.Arguments["path"].(string); ok && path != "" {
		return fmt.Sprintf("Running %s on %s", call.Name, path)
	}
	return fmt.Sprintf("Running %s", call.Name)
}

// contextBeforeQuestion assembles the retrieval follow-up turn: the labeled
// context block always precedes the restated question.
func contextBeforeQuestion(contextBlock, question string) string {
	return "Context from the vault:\n" + contextBlock + "\n\nQuestion: " + question
}
