package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AaronLay10/decisiongraph/internal/events"
)

const replHelp = `commands:
  step [n]                  advance n ticks (default 1)
  status                    show every agent
  events [n]                show the last n events (default 10)
  board <name>              show a blackboard
  signal <agent> <key> <v>  write v into an agent's blackboard ("all" for every agent)
  reset                     stop every agent so the next step restarts them
  help                      show this help
  quit                      leave`

var errQuit = errors.New("quit")

func (a *App) newReplCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "repl",
		Aliases: []string{"interactive"},
		Short:   "Step the simulation from an interactive prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.repl(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to run configuration (defaults apply when empty)")
	return cmd
}

func (a *App) repl(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, a.stderr)
	if err != nil {
		return err
	}
	st, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	served := st.serve(ctx)

	rl, err := readline.NewEx(&readline.Config{
		Prompt: "agentsim> ",
		Stdin:  a.stdin,
		Stdout: a.stdout,
		Stderr: a.stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to start prompt: %w", err)
	}
	defer rl.Close()

	st.startup("interactive")
	began := time.Now()
	fmt.Fprintln(a.stdout, "type 'help' for commands")
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := st.exec(a.stdout, line); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			fmt.Fprintln(a.stdout, "error:", err)
		}
	}

	st.shutdown("interactive session ended")
	cancel()
	<-served
	st.summarize(a.stdout, time.Since(began))
	return nil
}

// exec runs one prompt command.
func (s *stack) exec(w io.Writer, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "step", "s":
		n, err := intArg(args, 1)
		if err != nil {
			return err
		}
		running := 0
		for range n {
			running = s.runner.Tick()
		}
		fmt.Fprintf(w, "tick %s, %d running\n", humanize.Comma(int64(s.runner.TickCount())), running)
	case "status":
		fmt.Fprintf(w, "tick %s\n", humanize.Comma(int64(s.runner.TickCount())))
		for _, a := range s.runner.Snapshot() {
			fmt.Fprintf(w, "  %-10s %-8s ticks=%d runs=%d", a.Name, a.Status, a.Ticks, a.Runs)
			if a.Error != "" {
				fmt.Fprintf(w, " error=%s", a.Error)
			}
			fmt.Fprintln(w)
		}
	case "events":
		n, err := intArg(args, 10)
		if err != nil {
			return err
		}
		for _, e := range s.bus.Recent(n) {
			printEvent(w, e)
		}
	case "board":
		if len(args) != 1 {
			return errors.New("usage: board <name>")
		}
		b, ok := s.sim.Boards()[args[0]]
		if !ok {
			return fmt.Errorf("no board %q", args[0])
		}
		snap := b.Snapshot()
		for _, k := range b.Keys() {
			fmt.Fprintf(w, "  %s = %v\n", k, snap[k])
		}
	case "signal":
		if len(args) != 3 {
			return errors.New("usage: signal <agent> <key> <value>")
		}
		topic := strings.TrimSuffix(s.cfg.MQTT.SignalTopic, "/") + "/" + args[0] + "/" + args[1]
		return s.bridge.Deliver(topic, []byte(args[2]))
	case "reset":
		s.runner.Reset()
		fmt.Fprintln(w, "agents reset")
	case "help", "?":
		fmt.Fprintln(w, replHelp)
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	return nil
}

func intArg(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("expected a positive number, got %q", args[0])
	}
	return n, nil
}

func printEvent(w io.Writer, e events.Event) {
	fmt.Fprintf(w, "  %s %-5s %s", e.Timestamp, e.Level, e.Name)
	if agent, ok := e.Fields["agent"]; ok {
		fmt.Fprintf(w, " agent=%v", agent)
	}
	if e.Message != "" {
		fmt.Fprintf(w, " %q", e.Message)
	}
	fmt.Fprintln(w)
}
