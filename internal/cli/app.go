// Package cli implements the agentsim command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/decisiongraph/internal/version"
)

// App is the agentsim command tree.
type App struct {
	root   *cobra.Command
	stdin  io.ReadCloser
	stdout io.Writer
	stderr io.Writer
}

// New creates the application with its subcommands.
func New() *App {
	app := &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "agentsim",
		Short: "Run decision-graph agents in a simulated town",
		Long: `agentsim runs a town of agents, each driven by one decision graph:
a behaviour tree guard, a stack state machine patrol and a utility villager.

Traces go to the in-memory bus and, when configured, to sqlite or postgres,
an MQTT broker and the HTTP diagnostics API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newRunCmd(),
		app.newReplCmd(),
	)
	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithInput sets the reader used by the interactive prompt.
func (a *App) WithInput(stdin io.ReadCloser) *App {
	a.stdin = stdin
	return a
}

// Execute runs the command line until it finishes or the process is signalled.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the command line with explicit arguments.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "agentsim version %s\n", version.Version)
		},
	}
}
