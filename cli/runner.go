// Command execution for CLI commands.
//
// Information Hiding:
// - Agent setup and storage wiring hidden
// - Interrupt handling hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/notewell/notewell/agent"
	"github.com/notewell/notewell/config"
	"github.com/notewell/notewell/llm"
	"github.com/notewell/notewell/storage"
	"github.com/notewell/notewell/tools"
)

// Options holds CLI execution options.
type Options struct {
	Provider    string
	Vault       string
	MaxIter     int
	ToolRetries uint32
	Verbose     bool
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		MaxIter:     10,
		ToolRetries: 3,
		Verbose:     false,
	}
}

// defaultSessionID is used when chat runs without an explicit session.
const defaultSessionID = "default"

// defaultDBPath is the fallback database location.
const defaultDBPath = ".notewell/notewell.db"

// Ask runs one question through the agent loop and prints the answer.
func Ask(ctx context.Context, question string, sessionID, dbPath string, opts Options) error {
	provider, err := createProvider(opts.Provider)
	if err != nil {
		return err
	}

	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	store, closeStore, err := openExchangeStore(sessionID, resolveDBPath(dbPath, settings))
	if err != nil {
		return err
	}
	defer closeStore()

	a, err := BuildAssistant(provider, settings, store, opts)
	if err != nil {
		return err
	}
	if opts.Verbose {
		a.OnUpdate(newProgressPrinter().update)
	}

	response := runWithInterrupt(ctx, a, question, nil)
	printResponse(response, opts.Verbose)

	if response.Status == agent.RunFailed {
		return fmt.Errorf("run failed: %s", response.Error)
	}
	return nil
}

// Chat starts an interactive session. Conversation history and completed
// exchanges persist under the session ID; Ctrl-C interrupts the current
// run without leaving the session, and "/new" starts a fresh conversation.
func Chat(ctx context.Context, sessionID, dbPath string, opts Options) error {
	provider, err := createProvider(opts.Provider)
	if err != nil {
		return err
	}

	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	session := sessionID
	if session == "" {
		session = defaultSessionID
	}

	db, err := storage.OpenSqlite(resolveDBPath(dbPath, settings))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	recorder := storage.NewExchangeRecorder(db, session)
	a, err := BuildAssistant(provider, settings, recorder, opts)
	if err != nil {
		return err
	}
	if opts.Verbose {
		a.OnUpdate(newProgressPrinter().update)
	}

	history, err := db.Load(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if len(history) > 0 {
		fmt.Printf("Resuming session '%s' (%d messages)\n\n", session, len(history))
	}

	fmt.Println("Chat with your vault. Type 'exit' to quit, '/new' to start over.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		if input == "/new" {
			history = nil
			if err := db.Delete(ctx, session); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to clear session: %v\n", err)
			}
			fmt.Println("Started a new conversation.")
			fmt.Println()
			continue
		}

		response := runWithInterrupt(ctx, a, input, history)
		printResponse(response, opts.Verbose)

		if response.Answer != "" && response.Status != agent.RunFailed {
			// History keeps the rendered answer, not the reasoning envelope.
			answer := response.Answer
			if _, rest, ok := agent.ParseReasoningMarker(answer); ok {
				answer = rest
			}
			history = append(history,
				llm.UserMessage(input),
				llm.AssistantMessage(answer),
			)
			if err := db.Save(ctx, session, history); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save history: %v\n", err)
			}
		}
	}

	return scanner.Err()
}

// Sources prints the sources of recent exchanges in a session.
// Works without a provider; it only reads the local database.
func Sources(ctx context.Context, sessionID, dbPath string, limit int, opts Options) error {
	session := sessionID
	if session == "" {
		session = defaultSessionID
	}
	if limit <= 0 {
		limit = 5
	}

	if dbPath == "" {
		dbPath = os.Getenv("NOTEWELL_DB")
	}
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	db, err := storage.OpenSqlite(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	exchanges, err := db.ListExchanges(ctx, session, limit)
	if err != nil {
		return err
	}
	if len(exchanges) == 0 {
		fmt.Printf("No saved exchanges for session '%s'.\n", session)
		return nil
	}

	for _, ex := range exchanges {
		fmt.Printf("%s  %s\n", time.Unix(ex.CreatedAt, 0).Format("2006-01-02 15:04"), truncateString(ex.Input, 60))
		if section := sourcesSection(ex.Output); section != "" {
			fmt.Println(indent(section, "  "))
		} else {
			fmt.Println("  (no sources)")
		}
		fmt.Println()
	}
	return nil
}

// ListTools prints the vault tool set.
func ListTools(verbose bool) {
	fmt.Println("Available tools:")
	fmt.Println()

	for _, tool := range tools.VaultTools(".", nil, 0) {
		meta := tool.Metadata()
		fmt.Printf("  %s\n", meta.Name)
		fmt.Printf("    %s\n", meta.Description)

		if verbose && len(meta.Parameters) > 0 {
			fmt.Println("    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Printf("      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Println()
	}
}

// runWithInterrupt runs the agent while mapping Ctrl-C onto the
// cooperative cancellation signal. A second Ctrl-C is also absorbed; the
// run always returns through the agent's own interrupt path.
func runWithInterrupt(ctx context.Context, a *agent.Agent, question string, history []llm.ChatMessage) agent.Response {
	cancel := agent.NewCancelSignal()
	done := make(chan agent.Response, 1)
	go func() { done <- a.Run(ctx, question, history, cancel) }()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	for {
		select {
		case response := <-done:
			return response
		case <-interrupts:
			cancel.Cancel(agent.CancelInterrupt)
		}
	}
}

// loadSettings loads configuration and applies CLI overrides.
func loadSettings(opts Options) (config.Settings, error) {
	settings, err := config.New(opts.Provider)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.Vault != "" {
		settings.Vault.Root = opts.Vault
	}
	return settings, nil
}

func resolveDBPath(dbPath string, settings config.Settings) string {
	if dbPath != "" {
		return dbPath
	}
	return settings.Vault.DBPath
}

// openExchangeStore opens persistence for one-shot runs. Without a
// session the run is not persisted and the returned store is nil.
func openExchangeStore(sessionID, dbPath string) (agent.ExchangeStore, func(), error) {
	if sessionID == "" {
		return nil, func() {}, nil
	}

	db, err := storage.OpenSqlite(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return storage.NewExchangeRecorder(db, sessionID), func() { db.Close() }, nil
}

func loopTimeout(settings config.Settings) time.Duration {
	return time.Duration(settings.Agent.LoopTimeoutSecs) * time.Second
}

// progressPrinter prints newly recorded reasoning steps as the update
// stream advances. Updates arrive from both the reasoning timer and the
// streaming goroutine, so state is guarded by a mutex.
type progressPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	lastStep string
}

func newProgressPrinter() *progressPrinter {
	return &progressPrinter{out: os.Stderr}
}

func (p *progressPrinter) update(text string) {
	marker, _, ok := agent.ParseReasoningMarker(text)
	if !ok || len(marker.Steps) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// The marker window slides; announce the newest entry once.
	newest := marker.Steps[len(marker.Steps)-1]
	if newest != p.lastStep {
		fmt.Fprintf(p.out, "  . %s\n", newest)
		p.lastStep = newest
	}
}

// printResponse renders a finished run to the terminal.
func printResponse(response agent.Response, verbose bool) {
	_, answer, ok := agent.ParseReasoningMarker(response.Answer)
	if !ok {
		answer = response.Answer
	}

	if response.Status == agent.RunFailed {
		fmt.Fprintf(os.Stderr, "\nError: %s\n\n", response.Error)
		return
	}
	fmt.Printf("\n%s\n\n", answer)

	if verbose {
		printSteps(response.Steps)
		printUsage(response.Metadata)
	}
}

const maxStepSummaryLen = 120

func printSteps(steps []agent.ReasoningStep) {
	if len(steps) == 0 {
		return
	}
	fmt.Println("--- Steps ---")
	for i, step := range steps {
		fmt.Printf("[%d] %s\n", i+1, truncateString(step.Summary, maxStepSummaryLen))
	}
	fmt.Println("-------------")
	fmt.Println()
}

func printUsage(meta agent.Metadata) {
	fmt.Printf("Run: %dms, %d model calls", meta.ExecutionTimeMs, meta.LLMCalls)
	if meta.TokenUsage != nil {
		fmt.Printf(", %d tokens", meta.TokenUsage.TotalTokens)
	}
	if meta.FallbackUsed {
		fmt.Print(", fallback used")
	}
	fmt.Println()
	fmt.Println()
}

// sourcesSection extracts the sources block from a finalized answer.
func sourcesSection(answer string) string {
	idx := strings.LastIndex(answer, "#### Sources:")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(answer[idx:])
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
