package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/decisiongraph/internal/demo"
)

func (a *App) newValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a run configuration",
		Long: `Validate a run configuration and build its agents without running them.

Examples:
  agentsim validate -c town.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("configuration file path is required (-c flag)")
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			sim, err := demo.Build(demoOptions(cfg))
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			names := make([]string, len(sim.Agents))
			for i, ag := range sim.Agents {
				names[i] = ag.Name
				if err := ag.Graph.Start(); err != nil {
					return fmt.Errorf("validation failed: agent %s: %w", ag.Name, err)
				}
				ag.Graph.Stop()
			}
			fmt.Fprintf(a.stdout, "configuration is valid: %d agents (%s)\n", len(names), strings.Join(names, ", "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to run configuration")
	return cmd
}
