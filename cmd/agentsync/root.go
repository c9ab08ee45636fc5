package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentic-tools/agentsync/internal/config"
	"github.com/agentic-tools/agentsync/internal/version"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "agentsync",
	Short:         "Sync AI agent configuration between canonical and tool directories",
	Version:       version.Detailed(),
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "Config file path")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newSyncCmd("push"))
	rootCmd.AddCommand(newSyncCmd("pull"))
	rootCmd.AddCommand(newSyncCmd("sync"))
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newBackupsCmd())
}

// loadConfig reads the YAML config plus AGENTSYNC_* environment overrides and
// returns the validated result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	configPath, _ := cmd.Flags().GetString("config")
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("AGENTSYNC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound) {
			return nil, fmt.Errorf("no config at %s (run %s first)", configPath, cyan("agentsync init"))
		}
		return nil, fmt.Errorf("config read %s: %w", configPath, err)
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	return cfg, nil
}
