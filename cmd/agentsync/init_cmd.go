package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-tools/agentsync/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			configPath, _ := cmd.Flags().GetString("config")
			if err := config.WriteStarter(configPath); err != nil {
				return err
			}
			fmt.Printf("Wrote starter config to %s — edit the tool roots, then run %s\n",
				cyan(configPath), cyan("agentsync status"))
			return nil
		},
	}
}
