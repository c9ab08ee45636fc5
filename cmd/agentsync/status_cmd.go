package main

import (
	"github.com/spf13/cobra"

	"github.com/agentic-tools/agentsync/internal/baseline"
	"github.com/agentic-tools/agentsync/internal/sync"
)

// status is a bidirectional dry run: it shows what `sync` would do, without
// taking the run lock or touching baselines.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [tool ...]",
		Short: "Show pending changes without applying anything",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			baselines, err := baseline.Open(cfg.StateDir)
			if err != nil {
				return err
			}
			defer baselines.Close()

			engine := sync.NewEngine(cfg, baselines, nil)

			results, err := runEngine(cmd, engine, sync.DirectionSync, args, sync.Options{DryRun: true})
			for _, result := range results {
				printResult(result)
			}
			return err
		},
	}
	return cmd
}
