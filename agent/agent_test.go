package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/notewell/notewell/llm"
	"github.com/notewell/notewell/tools"
)

// scriptedTurn is one scripted model response for the fake provider.
type scriptedTurn struct {
	chunks []llm.StreamChunk
	err    error
	delay  time.Duration // per-chunk delay, for cancellation races
}

// fakeProvider replays scripted turns. The last turn repeats if the loop
// asks for more.
type fakeProvider struct {
	mu       sync.Mutex
	turns    []scriptedTurn
	streamed int
	chatErr  error
	chatText string
}

var _ llm.Provider = (*fakeProvider)(nil)

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-model" }

func (p *fakeProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	if p.chatErr != nil {
		return llm.LLMResponse{}, p.chatErr
	}
	return llm.LLMResponse{Content: p.chatText}, nil
}

func (p *fakeProvider) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, defs []llm.ToolDefinition) (llm.LLMResponse, error) {
	return p.Chat(ctx, messages)
}

func (p *fakeProvider) StreamChat(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	return nil, errors.New("not scripted")
}

func (p *fakeProvider) StreamChatWithTools(ctx context.Context, messages []llm.ChatMessage, defs []llm.ToolDefinition, chunks chan<- llm.StreamChunk) error {
	p.mu.Lock()
	index := p.streamed
	if index >= len(p.turns) {
		index = len(p.turns) - 1
	}
	p.streamed++
	turn := p.turns[index]
	p.mu.Unlock()

	for _, chunk := range turn.chunks {
		if turn.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(turn.delay):
			}
		}
		chunks <- chunk
	}
	return turn.err
}

func (p *fakeProvider) streamCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamed
}

// echoTool records invocations and returns a fixed output.
type echoTool struct {
	tools.BaseTool
	mu    sync.Mutex
	calls []string
}

func (t *echoTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        "echo",
		Description: "echoes its input",
		Parameters: []tools.ToolParameter{
			{Name: "text", ParamType: "string", Description: "text to echo", Required: true},
		},
	}
}

func (t *echoTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	t.mu.Lock()
	t.calls = append(t.calls, string(args))
	t.mu.Unlock()
	return tools.SuccessResult("echoed"), nil
}

func (t *echoTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// memoryStore records persisted exchanges.
type memoryStore struct {
	mu        sync.Mutex
	exchanges [][2]string
}

func (s *memoryStore) SaveExchange(ctx context.Context, input, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = append(s.exchanges, [2]string{input, output})
	return nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exchanges)
}

func textTurn(text string) scriptedTurn {
	return scriptedTurn{chunks: []llm.StreamChunk{
		{Kind: llm.ChunkPlain, Text: text},
		{Kind: llm.ChunkPlain, FinishReason: llm.FinishStop},
	}}
}

func toolTurn(id, name, args string) scriptedTurn {
	return scriptedTurn{chunks: []llm.StreamChunk{
		{
			Kind:         llm.ChunkPlain,
			ToolCalls:    []llm.ToolCallDelta{{Index: 0, ID: id, Name: name, Args: args}},
			FinishReason: llm.FinishToolCalls,
		},
	}}
}

func testConfig(tls ...tools.Tool) Config {
	cfg := DefaultConfig()
	cfg.Tools = tls
	cfg.InlineCitations = false
	return cfg
}

func TestRunTerminatesWithoutTools(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{textTurn("direct answer")}}
	agent := New(testConfig(&echoTool{}), provider)

	resp := agent.Run(context.Background(), "hello", nil, nil)

	if resp.Status != RunSuccess {
		t.Fatalf("expected success, got %v: %s", resp.Status, resp.Error)
	}
	if !strings.Contains(resp.Answer, "direct answer") {
		t.Errorf("answer missing model text: %q", resp.Answer)
	}
	if provider.streamCalls() != 1 {
		t.Errorf("expected exactly 1 model call, got %d", provider.streamCalls())
	}
	if len(resp.Metadata.ToolCalls) != 0 {
		t.Errorf("no tools were requested, got %d dispatches", len(resp.Metadata.ToolCalls))
	}
}

func TestRunExecutesToolThenAnswers(t *testing.T) {
	tool := &echoTool{}
	provider := &fakeProvider{turns: []scriptedTurn{
		toolTurn("call_1", "echo", `{"text": "hi"}`),
		textTurn("used the tool"),
	}}
	agent := New(testConfig(tool), provider)

	resp := agent.Run(context.Background(), "use echo", nil, nil)

	if resp.Status != RunSuccess {
		t.Fatalf("expected success, got %v: %s", resp.Status, resp.Error)
	}
	if tool.callCount() != 1 {
		t.Errorf("expected 1 tool execution, got %d", tool.callCount())
	}
	if len(resp.Metadata.ToolCalls) != 1 || !resp.Metadata.ToolCalls[0].Success {
		t.Errorf("tool metric missing: %+v", resp.Metadata.ToolCalls)
	}
	// Issued and finished summaries are both recorded.
	var summaries []string
	for _, step := range resp.Steps {
		summaries = append(summaries, step.Summary)
	}
	joined := strings.Join(summaries, "\n")
	if !strings.Contains(joined, "Running echo") || !strings.Contains(joined, "Finished echo") {
		t.Errorf("step summaries incomplete: %v", summaries)
	}
}

func TestRunMaxIterations(t *testing.T) {
	tool := &echoTool{}
	provider := &fakeProvider{turns: []scriptedTurn{
		toolTurn("call_1", "echo", `{"text": "again"}`),
	}}
	cfg := testConfig(tool)
	cfg.MaxIterations = 3
	agent := New(cfg, provider)

	resp := agent.Run(context.Background(), "loop forever", nil, nil)

	if resp.Status != RunMaxIterations {
		t.Fatalf("expected max iterations, got %v", resp.Status)
	}
	if provider.streamCalls() != 3 {
		t.Errorf("expected 3 model calls, got %d", provider.streamCalls())
	}
	if !strings.Contains(resp.Answer, "maximum of 3") {
		t.Errorf("notice missing: %q", resp.Answer)
	}
	// Best-effort answer carries the recorded step summaries.
	if !strings.Contains(resp.Answer, "Finished echo") {
		t.Errorf("step summaries missing from answer: %q", resp.Answer)
	}
}

func TestRunTimeout(t *testing.T) {
	tool := &echoTool{}
	provider := &fakeProvider{turns: []scriptedTurn{
		toolTurn("call_1", "echo", `{"text": "slow"}`),
	}}
	cfg := testConfig(tool)
	cfg.LoopTimeout = time.Nanosecond // elapses before the second iteration
	agent := New(cfg, provider)

	resp := agent.Run(context.Background(), "slow question", nil, nil)

	if resp.Status != RunTimedOut {
		t.Fatalf("expected timeout, got %v", resp.Status)
	}
	if resp.Answer == "" {
		t.Error("timeout must produce a best-effort answer, not an empty response")
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{textTurn("never sent")}}
	agent := New(testConfig(), provider)

	signal := NewCancelSignal()
	signal.Cancel(CancelInterrupt)

	resp := agent.Run(context.Background(), "q", nil, signal)

	if resp.Status != RunInterrupted {
		t.Fatalf("expected interrupted, got %v", resp.Status)
	}
	if provider.streamCalls() != 0 {
		t.Errorf("model must not be invoked after cancellation, got %d calls", provider.streamCalls())
	}
}

func TestRunInterruptedNoticeExactlyOnce(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{{
		chunks: []llm.StreamChunk{
			{Kind: llm.ChunkPlain, Text: "partial "},
			{Kind: llm.ChunkPlain, Text: "answer"},
			{Kind: llm.ChunkPlain, Text: " that keeps going"},
		},
		delay: 60 * time.Millisecond,
	}}}

	var mu sync.Mutex
	var updates []string
	signal := NewCancelSignal()

	agent := New(testConfig(), provider).OnUpdate(func(text string) {
		mu.Lock()
		updates = append(updates, text)
		mu.Unlock()
	})

	go func() {
		time.Sleep(90 * time.Millisecond)
		signal.Cancel(CancelInterrupt)
	}()

	resp := agent.Run(context.Background(), "q", nil, signal)

	if resp.Status != RunInterrupted {
		t.Fatalf("expected interrupted, got %v", resp.Status)
	}

	// Both the reasoning timer and the loop observed the cancellation;
	// exactly one of them may have emitted the notice.
	mu.Lock()
	defer mu.Unlock()
	count := 0
	for _, u := range updates {
		count += strings.Count(u, strings.TrimSpace(interruptedNotice))
	}
	full := resp.Answer
	total := count + strings.Count(full, strings.TrimSpace(interruptedNotice))
	if count > 1 {
		t.Errorf("interrupted notice emitted %d times in updates", count)
	}
	if total == 0 {
		t.Error("interrupted notice never surfaced")
	}
}

func TestRunOverloadRetried(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		{err: errors.New("server overloaded, try again")},
		textTurn("recovered"),
	}}
	agent := New(testConfig(), provider)

	start := time.Now()
	resp := agent.Run(context.Background(), "q", nil, nil)

	if resp.Status != RunSuccess {
		t.Fatalf("expected recovery, got %v: %s", resp.Status, resp.Error)
	}
	if provider.streamCalls() != 2 {
		t.Errorf("expected retry, got %d calls", provider.streamCalls())
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("expected backoff before retry, elapsed %v", elapsed)
	}
}

func TestRunFallbackOnFatalError(t *testing.T) {
	provider := &fakeProvider{
		turns:    []scriptedTurn{{err: errors.New("schema rejected")}},
		chatText: "fallback answer",
	}
	agent := New(testConfig(), provider)

	resp := agent.Run(context.Background(), "q", nil, nil)

	if resp.Status != RunSuccess {
		t.Fatalf("expected fallback success, got %v: %s", resp.Status, resp.Error)
	}
	if !resp.Metadata.FallbackUsed {
		t.Error("fallback flag not set")
	}
	if !strings.Contains(resp.Answer, "fallback answer") {
		t.Errorf("fallback answer missing: %q", resp.Answer)
	}
}

func TestRunFallbackFailureSurfacesBothErrors(t *testing.T) {
	provider := &fakeProvider{
		turns:   []scriptedTurn{{err: errors.New("first failure")}},
		chatErr: errors.New("second failure"),
	}
	agent := New(testConfig(), provider)

	resp := agent.Run(context.Background(), "q", nil, nil)

	if resp.Status != RunFailed {
		t.Fatalf("expected failure, got %v", resp.Status)
	}
	if !strings.Contains(resp.Error, "first failure") || !strings.Contains(resp.Error, "second failure") {
		t.Errorf("both errors must surface together: %q", resp.Error)
	}
}

func TestRunPersistsExchange(t *testing.T) {
	store := &memoryStore{}
	provider := &fakeProvider{turns: []scriptedTurn{textTurn("saved answer")}}
	agent := New(testConfig(), provider).WithStore(store)

	agent.Run(context.Background(), "remember this", nil, nil)

	if store.count() != 1 {
		t.Fatalf("expected 1 persisted exchange, got %d", store.count())
	}
}

func TestRunNewConversationSuppressesPersistence(t *testing.T) {
	store := &memoryStore{}
	provider := &fakeProvider{turns: []scriptedTurn{textTurn("never kept")}}
	agent := New(testConfig(), provider).WithStore(store)

	signal := NewCancelSignal()
	signal.Cancel(CancelNewConversation)

	agent.Run(context.Background(), "q", nil, signal)

	if store.count() != 0 {
		t.Errorf("new-conversation cancellation must suppress persistence, got %d", store.count())
	}
}

func TestRunProgressiveReveal(t *testing.T) {
	long := strings.Repeat("word ", 200)
	provider := &fakeProvider{turns: []scriptedTurn{textTurn(long)}}

	var mu sync.Mutex
	var updates []string
	cfg := testConfig()
	cfg.RevealChunkSize = 50
	agent := New(cfg, provider).OnUpdate(func(text string) {
		mu.Lock()
		updates = append(updates, text)
		mu.Unlock()
	})

	resp := agent.Run(context.Background(), "q", nil, nil)

	mu.Lock()
	defer mu.Unlock()
	if len(updates) < 3 {
		t.Fatalf("expected incremental reveals, got %d updates", len(updates))
	}
	// The final update is the complete answer.
	if updates[len(updates)-1] != resp.Answer {
		t.Errorf("last update must equal the final answer")
	}
	// Reveals grow monotonically over the final stretch.
	last := updates[len(updates)-1]
	prev := updates[len(updates)-2]
	if !strings.HasPrefix(last, prev[:len(prev)/2]) {
		t.Errorf("reveal increments are not prefixes of the final answer")
	}
}

func TestRunRecallTermsAugmentLaterSearches(t *testing.T) {
	retriever := &loggingRetriever{}
	search := tools.NewVaultSearchTool(retriever, 6)

	provider := &fakeProvider{turns: []scriptedTurn{
		toolTurn("call_1", tools.VaultSearchName, `{"query": "roadmap goals"}`),
		toolTurn("call_2", tools.VaultSearchName, `{"query": "decoder"}`),
		textTurn("done"),
	}}
	agent := New(testConfig(search), provider)

	resp := agent.Run(context.Background(), "what is planned", nil, nil)
	if resp.Status != RunSuccess {
		t.Fatalf("expected success, got %v: %s", resp.Status, resp.Error)
	}

	retriever.mu.Lock()
	defer retriever.mu.Unlock()
	if len(retriever.recalls) != 2 {
		t.Fatalf("expected 2 searches, got %d", len(retriever.recalls))
	}
	// The second search carries terms recalled from the first.
	second := strings.Join(retriever.recalls[1], " ")
	if !strings.Contains(second, "roadmap") {
		t.Errorf("recall terms not carried forward: %v", retriever.recalls[1])
	}
}

// loggingRetriever records recall terms per search.
type loggingRetriever struct {
	mu      sync.Mutex
	recalls [][]string
}

func (r *loggingRetriever) Search(ctx context.Context, query string, recallTerms []string, limit int) ([]tools.SearchHit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recalls = append(r.recalls, recallTerms)
	return []tools.SearchHit{
		{Title: fmt.Sprintf("Note for %s", query), Path: query + ".md", Excerpt: "excerpt"},
	}, nil
}

func TestRunCollectsSourcesFromRetrieval(t *testing.T) {
	retriever := &loggingRetriever{}
	search := tools.NewVaultSearchTool(retriever, 6)

	provider := &fakeProvider{turns: []scriptedTurn{
		toolTurn("call_1", tools.VaultSearchName, `{"query": "plans"}`),
		textTurn("answer grounded in notes"),
	}}
	agent := New(testConfig(search), provider)

	resp := agent.Run(context.Background(), "q", nil, nil)

	if len(resp.Sources) != 1 || resp.Sources[0].Title != "Note for plans" {
		t.Errorf("sources not collected: %+v", resp.Sources)
	}
}

func TestRunToolFailureContinuesLoop(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		toolTurn("call_1", "missing_tool", `{}`),
		textTurn("coped with it"),
	}}
	agent := New(testConfig(), provider)

	resp := agent.Run(context.Background(), "q", nil, nil)

	if resp.Status != RunSuccess {
		t.Fatalf("tool failure must not abort the run, got %v: %s", resp.Status, resp.Error)
	}
	var failed bool
	for _, step := range resp.Steps {
		if strings.Contains(step.Summary, "failed") {
			failed = true
		}
	}
	if !failed {
		t.Error("failure-path step summary missing")
	}
}
