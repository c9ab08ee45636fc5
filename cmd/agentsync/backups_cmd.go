package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agentic-tools/agentsync/internal/backup"
	"github.com/agentic-tools/agentsync/internal/config"
)

func newBackupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect and prune pre-destruction backups",
	}
	cmd.AddCommand(newBackupsListCmd())
	cmd.AddCommand(newBackupsPruneCmd())
	return cmd
}

func openBackupStore(cfg *config.Config) (*backup.Store, error) {
	return backup.NewStore(cfg.BackupDir, backup.StoreOptions{
		RetentionDays:  cfg.Settings.BackupRetentionDays,
		RetentionCount: cfg.Settings.BackupRetentionCount,
		Compress:       cfg.Settings.CompressOldBackups,
	})
}

func newBackupsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openBackupStore(cfg)
			if err != nil {
				return err
			}

			entries, err := store.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No backups stored")
				return nil
			}

			for _, entry := range entries {
				compressed := ""
				if entry.Compressed {
					compressed = " (compressed)"
				}
				fmt.Printf("%s  %s  %s%s\n",
					humanize.Time(entry.Manifest.CreatedAt),
					humanize.Bytes(uint64(entry.Manifest.Size)),
					entry.Manifest.OriginalPath, compressed)
			}
			return nil
		},
	}
}

func newBackupsPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove backups past the retention limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openBackupStore(cfg)
			if err != nil {
				return err
			}

			removed, err := store.PurgeExpired()
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d backups\n", removed)
			return nil
		},
	}
}
