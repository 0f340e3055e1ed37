package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/waveforge/wave/internal/config"
	"github.com/waveforge/wave/internal/events"
	"github.com/waveforge/wave/internal/permission"
	"github.com/waveforge/wave/pkg/block"
)

// buildChatCmd runs one interactive session against stdin/stdout,
// printing assistant text as it streams and prompting for permission
// decisions the way a terminal host must when CanUseTool is left nil.
func buildChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session in the current workdir",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), workdir)
		},
	}
	return cmd
}

func runChat(ctx context.Context, workdir string) error {
	cfg, err := config.Load(workdir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	obs := buildObservability(cfg.Observability)

	stdout := os.Stdout
	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	callbacks := events.Callbacks{
		OnAssistantContentUpdated: func(messageID, blockID, chunk string) {
			fmt.Fprint(stdout, chunk)
		},
		OnAssistantMessageAdded: func(msg *block.Message) {
			fmt.Fprintln(stdout)
		},
		OnToolBlockAdded: func(messageID string, tb *block.ToolBlock) {
			fmt.Fprintf(stdout, "\n[tool] %s\n", tb.Name)
		},
		OnErrorBlockAdded: func(messageID string, eb *block.ErrorBlock) {
			fmt.Fprintf(stdout, "\n[error] %s\n", eb.Message)
		},
		OnWarnMessageAdded: func(text string) {
			fmt.Fprintf(stdout, "\n[warn] %s\n", text)
		},
	}

	agent, stopMCP, err := newAgent(ctx, cfg, obs, callbacks)
	if err != nil {
		return err
	}
	defer stopMCP()
	defer agent.Destroy()
	if obs.flush != nil {
		defer obs.flush(ctx)
	}
	defer startScheduler(ctx, cfg, agent)()

	fmt.Fprintf(stdout, "waveagent chat — workdir %s, model %s\n", cfg.Workdir, cfg.LLM.Model)
	if interactive {
		fmt.Fprintln(stdout, "Type a message and press enter. Ctrl-D to exit.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if interactive {
			fmt.Fprint(stdout, "\n> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			break
		}

		if _, err := agent.SendMessage(ctx, line, nil); err != nil {
			fmt.Fprintf(stdout, "\n[error] %v\n", err)
			continue
		}
		if err := drainPendingPermissions(agent, stdout); err != nil {
			fmt.Fprintf(stdout, "\n[error] %v\n", err)
		}
	}
	return scanner.Err()
}

// drainPendingPermissions resolves every outstanding permission request
// by prompting the terminal, since runChat leaves CanUseTool nil and
// relies on hostapi's PendingRegistry instead of a synchronous callback.
func drainPendingPermissions(agent interface {
	GetPendingPermissions() ([]permission.PendingRequest, error)
	ResolvePermissionRequest(id string, decision permission.PermissionDecision) error
}, stdout *os.File) error {
	pending, err := agent.GetPendingPermissions()
	if err != nil {
		return err
	}
	reader := bufio.NewReader(os.Stdin)
	for _, req := range pending {
		fmt.Fprintf(stdout, "\n[permission] %s wants to run %s. Allow? [y/N] ", req.ID, req.Context.ToolName)
		answer, _ := reader.ReadString('\n')
		behavior := "deny"
		if strings.EqualFold(strings.TrimSpace(answer), "y") {
			behavior = "allow"
		}
		if err := agent.ResolvePermissionRequest(req.ID, permission.PermissionDecision{Behavior: behavior}); err != nil {
			return err
		}
	}
	return nil
}
