// Package main provides the notewell CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/notewell/notewell/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider    string
	vaultRoot   string
	maxIter     int
	toolRetries uint32
	verbose     bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "notewell",
		Short: "A vault-grounded assistant for your notes",
		Long: `Notewell answers questions about a personal note vault.

The agent searches and reads your markdown notes, cites the notes it used,
and streams its reasoning progress while it works. Conversations persist
per session in a local SQLite database.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVar(&vaultRoot, "vault", "", "Vault root directory (default: NOTEWELL_VAULT or current directory)")
	rootCmd.PersistentFlags().IntVarP(&maxIter, "max-iter", "m", 0, "Maximum agent loop iterations (default from config)")
	rootCmd.PersistentFlags().Uint32Var(&toolRetries, "tool-retries", 3, "Maximum retries for tool execution")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show reasoning steps and run metrics")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider:    provider,
		Vault:       vaultRoot,
		MaxIter:     maxIter,
		ToolRetries: toolRetries,
		Verbose:     verbose,
	}
}

func askCmd() *cobra.Command {
	var sessionID string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question about your vault",
		Long: `Ask one question and print the answer.

The agent searches the vault, reads notes as needed, and cites its
sources. With --session the exchange is saved alongside that session's
chat history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(context.Background(), args[0], sessionID, dbPath, options())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for exchange persistence")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default: NOTEWELL_DB)")

	return cmd
}

func chatCmd() *cobra.Command {
	var sessionID string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session with your vault",
		Long: `Start an interactive chat session.

History persists per session; Ctrl-C interrupts the current answer
without ending the session, and '/new' starts a fresh conversation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(context.Background(), sessionID, dbPath, options())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for conversation persistence")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default: NOTEWELL_DB)")

	return cmd
}

func sourcesCmd() *cobra.Command {
	var sessionID string
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Show the sources cited in recent exchanges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Sources(context.Background(), sessionID, dbPath, limit, options())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to inspect")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default: NOTEWELL_DB)")
	cmd.Flags().IntVar(&limit, "limit", 5, "Number of recent exchanges to show")

	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.ListTools(verboseTools)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}
