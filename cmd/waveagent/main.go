// Command waveagent is the thin host binary SPEC_FULL.md §10 names: it
// wires a real engine.Completer, loads .wave/ configuration, and drives
// hostapi.Agent.SendMessage either from an interactive terminal or over
// HTTP — demonstrating github.com/spf13/cobra the way the teacher's
// cmd/nexus demonstrates its own runtime.
//
// # Basic Usage
//
// Start an interactive session in the current directory:
//
//	waveagent chat
//
// Start the HTTP/websocket host:
//
//	waveagent serve --port 8787
//
// # Environment Variables
//
//   - AIGW_TOKEN: LLM provider API key (Anthropic/OpenAI/Bedrock
//     depending on llm.provider)
//   - AIGW_URL: LLM provider base URL override
//   - AIGW_MODEL / AIGW_FAST_MODEL: default/fast model overrides
//   - TOKEN_LIMIT: default max-tokens-per-turn override
//   - JWT_SECRET: HTTP mode's bearer-token signing secret
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var workdir string

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "waveagent",
		Short:        "waveagent - an interactive coding-agent runtime host",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&workdir, "workdir", ".", "Project root directory (expects a .wave/ config tree)")
	root.AddCommand(buildChatCmd(), buildServeCmd(), buildAuthCmd())
	return root
}
