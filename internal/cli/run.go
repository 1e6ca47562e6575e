package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AaronLay10/decisiongraph/internal/config"
)

type runOptions struct {
	configPath string
	maxTicks   int
	interval   time.Duration
}

func (a *App) newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation until every agent finishes",
		Long: `Run the configured agents on a fixed tick until every agent has
finished, max ticks is reached or the process is interrupted.

Examples:
  agentsim run -c town.yaml
  agentsim run -c town.yaml --max-ticks 500 --interval 10ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to run configuration (defaults apply when empty)")
	cmd.Flags().IntVar(&opts.maxTicks, "max-ticks", -1, "Override sim.max_ticks")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "Override sim.tick_interval")
	return cmd
}

func (o *runOptions) apply(cfg *config.RunConfig) {
	if o.maxTicks >= 0 {
		cfg.Sim.MaxTicks = o.maxTicks
	}
	if o.interval > 0 {
		cfg.Sim.TickInterval = o.interval
	}
}

func (a *App) run(ctx context.Context, opts *runOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)
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

	st.startup("batch")
	began := time.Now()
	err = st.runner.Run(ctx, cfg.Sim.TickInterval, cfg.Sim.MaxTicks)
	reason := "finished"
	if errors.Is(err, context.Canceled) {
		reason, err = "interrupted", nil
	}
	st.shutdown(reason)
	cancel()
	if serr := <-served; serr != nil && err == nil {
		err = serr
	}

	st.summarize(a.stdout, time.Since(began))
	return err
}

// summarize prints the tick count, per-agent outcomes and event totals.
func (s *stack) summarize(w io.Writer, elapsed time.Duration) {
	ticks := s.runner.TickCount()
	fmt.Fprintf(w, "%s ticks in %s\n", humanize.Comma(int64(ticks)), elapsed.Round(time.Millisecond))
	for _, a := range s.runner.Snapshot() {
		line := fmt.Sprintf("  %-10s %-8s %s ticks, %s run", a.Name, a.Status, humanize.Comma(int64(a.Ticks)), humanize.Ordinal(a.Runs))
		if a.Error != "" {
			line += ": " + a.Error
		}
		fmt.Fprintln(w, line)
	}
	var total uint64
	for _, n := range s.bus.Counts() {
		total += n
	}
	fmt.Fprintf(w, "%s events traced\n", humanize.Comma(int64(total)))
	if s.trace != nil {
		if n, err := s.trace.Count("agent.finished"); err == nil {
			fmt.Fprintf(w, "%s agent runs stored in %s\n", humanize.Comma(int64(n)), s.cfg.Storage.SQLitePath)
		}
	}
}
