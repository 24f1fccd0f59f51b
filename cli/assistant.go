// Assistant construction for CLI commands.
//
// Information Hiding:
// - Tool wiring and retriever choice hidden
// - System prompt assembly hidden

package cli

import (
	"fmt"

	"github.com/notewell/notewell/agent"
	"github.com/notewell/notewell/config"
	"github.com/notewell/notewell/llm"
	"github.com/notewell/notewell/tools"
)

const defaultSystemPrompt = `You are Notewell, an assistant for a personal note vault.

Ground every answer in the vault. Search before answering questions about
the user's notes, plans, or past decisions. Read notes when search excerpts
are not enough. If the vault has nothing relevant, say so instead of
guessing.

Keep answers concise and practical.`

// BuildAssistant wires the vault assistant agent from settings.
// The returned agent searches the vault with a keyword retriever; callers
// needing a real index should construct the agent directly.
func BuildAssistant(provider llm.Provider, settings config.Settings, store agent.ExchangeStore, opts Options) (*agent.Agent, error) {
	retriever := tools.NewKeywordRetriever(settings.Vault.Root)

	maxIter := opts.MaxIter
	if maxIter <= 0 {
		maxIter = settings.Agent.MaxIterations
	}

	cfg := agent.Config{
		Name:            "notewell",
		SystemPrompt:    defaultSystemPrompt,
		Tools:           tools.VaultTools(settings.Vault.Root, retriever, settings.Vault.SearchLimit),
		MaxIterations:   maxIter,
		LoopTimeout:     loopTimeout(settings),
		InlineCitations: settings.Agent.InlineCitations,
		RevealChunkSize: settings.Agent.RevealChunkSize,
	}

	a := agent.New(cfg, provider).
		WithToolConfig(tools.ToolConfig{MaxRetries: opts.ToolRetries})
	if store != nil {
		a = a.WithStore(store)
	}
	return a, nil
}

// createProvider builds an LLM provider from the named configuration.
func createProvider(providerName string) (llm.Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("--provider is required for this command")
	}

	providerType, err := llm.ParseProviderType(providerName)
	if err != nil {
		return nil, err
	}

	settings, err := config.New(providerName)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(providerName)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		APIKey(apiKey)
}
