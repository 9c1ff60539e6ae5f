package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/github"
	"github.com/hupe1980/docsmesh/runner"
)

var (
	askRepo    string
	askContext map[string]string
	askVerbose bool
)

func init() {
	askCmd.Flags().StringVar(&askRepo, "repo", "", "current GitHub repository (owner/name)")
	askCmd.Flags().StringToStringVar(&askContext, "context", nil, "working context values (key=value)")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print tool calls and results")
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Model.APIKey == "" {
			return fmt.Errorf("%w: %s api key", core.ErrMissingCredentials, cfg.Model.Provider)
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		working := map[string]any{}
		for k, v := range askContext {
			working[k] = v
		}
		if askRepo != "" {
			working[github.CurrentRepoKey] = askRepo
		}

		return ask(ctx, a.assistant.Runner(), strings.Join(args, " "), working, cmd.OutOrStdout(), cmd.ErrOrStderr(), askVerbose)
	},
}

// ask runs one request and renders its event stream: text to out, progress
// to status.
func ask(ctx context.Context, r *runner.Runner, question string, working map[string]any, out, status io.Writer, verbose bool) error {
	inv, err := r.Run(ctx, runner.Request{
		Content: core.NewTextContent(core.RoleUser, question),
		Context: working,
	})
	if err != nil {
		return err
	}

	var terminal *core.Event
	for ev := range inv.Events {
		switch ev.Type {
		case core.EventTextChunk:
			fmt.Fprint(out, ev.Content)
		case core.EventToolCall:
			if verbose {
				fmt.Fprintf(status, "\n→ %s %v\n", ev.Name, ev.Input)
			}
		case core.EventToolResult:
			if verbose {
				mark := "✓"
				if ev.IsError {
					mark = "✗"
				}
				fmt.Fprintf(status, "%s %s (%d chars)\n", mark, ev.Name, len(ev.Result))
			}
		case core.EventComplete, core.EventError:
			ev := ev
			terminal = &ev
		}
	}
	fmt.Fprintln(out)

	switch {
	case terminal == nil:
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("run ended without a result")
	case terminal.Type == core.EventError:
		return fmt.Errorf("%s: %s", terminal.ErrorCode, terminal.Content)
	}
	return nil
}
