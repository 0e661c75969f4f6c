package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/xlttj/kportfwd/pkg/config"
	"github.com/xlttj/kportfwd/pkg/k8s"
	"github.com/xlttj/kportfwd/pkg/logging"
	"github.com/xlttj/kportfwd/pkg/session"
)

var errForwarderStopped = errors.New("forwarder stopped: restart failed")

var (
	stdoutStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	stderrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// spawner is replaced in tests.
var spawner k8s.Spawner = k8s.ExecSpawner{}

func newForwardCmd(opts *rootOptions) *cobra.Command {
	var kubeContext, address string

	cmd := &cobra.Command{
		Use:   "forward <service>",
		Short: "Run one forwarder in the foreground until interrupted",
		Long: `Run a single forwarder without the TUI. Its log is printed as it grows
and the kubectl process is restarted whenever it exits. Ctrl+C (or
SIGTERM) stops the forwarder and exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			catalog, err := config.LoadCatalog(opts.settings.Catalog)
			if err != nil {
				return err
			}
			resolved, err := opts.resolveContext(ctx, kubeContext)
			if err != nil {
				return err
			}
			if address == "" {
				address = opts.settings.DefaultAddress
			}

			registry := session.NewRegistry(catalog, spawner)
			sup := registry.Create(opts.sessionOptions())
			params := session.Params{Context: resolved, Service: args[0], Address: address}

			out := cmd.OutOrStdout()
			followErr := sup.Connect(ctx, params)
			if followErr == nil {
				followErr = follow(ctx, sup, out)
			} else {
				printEvents(out, sup.Log().Events(0))
				followErr = fmt.Errorf("connect %s: %w", args[0], followErr)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout())
			defer cancel()
			if err := registry.ShutdownAll(shutdownCtx); err != nil {
				logging.LogError("Shutdown forwarder: %v", err)
				if followErr == nil {
					followErr = err
				}
			}
			return followErr
		},
	}
	cmd.Flags().StringVar(&kubeContext, "context", "", "Context to forward in (defaults to the active context)")
	cmd.Flags().StringVar(&address, "address", "", "Bind address (defaults to the settings' default address)")
	return cmd
}

// follow prints the session log until ctx is done or the forwarder gives up.
func follow(ctx context.Context, sup *session.Supervisor, out io.Writer) error {
	seen := 0
	for {
		events, err := sup.Log().Wait(ctx, seen)
		if err != nil {
			// Interrupted: the caller shuts the session down.
			return nil
		}
		printEvents(out, events)
		seen = events[len(events)-1].Seq + 1

		if sup.State() == session.Idle {
			// The failed restart may have logged after this batch.
			printEvents(out, sup.Log().Events(seen))
			return errForwarderStopped
		}
	}
}

func printEvents(out io.Writer, events []session.LogEvent) {
	for _, ev := range events {
		text := ev.Text
		switch ev.Severity {
		case session.SeverityStdout:
			text = stdoutStyle.Render(text)
		case session.SeverityStderr:
			text = stderrStyle.Render(text)
		}
		fmt.Fprintf(out, "%s %s\n", dimStyle.Render(ev.Time.Format("15:04:05")), text)
	}
}
