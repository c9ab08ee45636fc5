package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/agentic-tools/agentsync/internal/backup"
	"github.com/agentic-tools/agentsync/internal/baseline"
	"github.com/agentic-tools/agentsync/internal/config"
	"github.com/agentic-tools/agentsync/internal/propagate"
	"github.com/agentic-tools/agentsync/internal/specialfile"
	"github.com/agentic-tools/agentsync/internal/sync"
	"github.com/agentic-tools/agentsync/internal/utils"
)

const lockFileName = "agentsync.lock"

var syncShort = map[sync.Direction]string{
	sync.DirectionPush: "Propagate source state onto targets",
	sync.DirectionPull: "Propagate target state back onto sources",
	sync.DirectionSync: "Reconcile sources and targets bidirectionally",
}

func newSyncCmd(name string) *cobra.Command {
	direction, _ := sync.ParseDirection(name)

	cmd := &cobra.Command{
		Use:   name + " [tool ...]",
		Short: syncShort[direction],
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			autoResolve, _ := cmd.Flags().GetBool("auto-resolve")
			yes, _ := cmd.Flags().GetBool("yes")
			return runSync(cmd, direction, args, dryRun, autoResolve, yes)
		},
	}
	cmd.Flags().BoolP("dry-run", "n", false, "Show what would happen without touching any file")
	cmd.Flags().Bool("auto-resolve", false, "Resolve conflicts by most recent modification time")
	cmd.Flags().BoolP("yes", "y", false, "Skip the destructive-changes check")
	return cmd
}

func runSync(cmd *cobra.Command, direction sync.Direction, toolNames []string, dryRun, autoResolve, yes bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	unlock, err := acquireRunLock(cfg)
	if err != nil {
		return err
	}
	defer unlock()

	baselines, err := baseline.Open(cfg.StateDir)
	if err != nil {
		return err
	}
	defer baselines.Close()

	backups, err := backup.NewStore(cfg.BackupDir, backup.StoreOptions{
		RetentionDays:  cfg.Settings.BackupRetentionDays,
		RetentionCount: cfg.Settings.BackupRetentionCount,
		Compress:       cfg.Settings.CompressOldBackups,
	})
	if err != nil {
		return err
	}

	engine := sync.NewEngine(cfg, baselines, backups)
	opts := sync.Options{DryRun: dryRun, AutoResolve: autoResolve}

	if !dryRun && !yes {
		if err := checkDestructive(cmd, engine, cfg, direction, toolNames, autoResolve); err != nil {
			return err
		}
	}

	results, err := runEngine(cmd, engine, direction, toolNames, opts)
	for _, result := range results {
		printResult(result)
	}
	if err != nil {
		return err
	}

	runSpecialFiles(cfg, direction, toolNames, dryRun)
	if direction != sync.DirectionPull {
		runPropagation(cfg, dryRun)
	}

	if !dryRun && cfg.Settings.AutoCleanupBackups {
		if removed, err := backups.PurgeExpired(); err == nil && removed > 0 {
			fmt.Printf("Pruned %d expired backups\n", removed)
		}
	}

	for _, result := range results {
		if result.Failed > 0 {
			return fmt.Errorf("%d actions failed, see log for details", totalFailed(results))
		}
	}
	return nil
}

func runEngine(cmd *cobra.Command, engine *sync.Engine, direction sync.Direction, toolNames []string, opts sync.Options) ([]*sync.SyncResult, error) {
	if len(toolNames) == 0 {
		return engine.SyncAll(cmd.Context(), direction, opts)
	}

	var results []*sync.SyncResult
	var errs []error
	for _, name := range toolNames {
		result, err := engine.SyncTool(cmd.Context(), name, direction, opts)
		if err != nil {
			errs = append(errs, err)
		}
		if result != nil {
			results = append(results, result)
		}
	}
	return results, errors.Join(errs...)
}

// checkDestructive previews the run and refuses to proceed when it would
// delete or rename files on a side whose settings demand confirmation.
func checkDestructive(cmd *cobra.Command, engine *sync.Engine, cfg *config.Config, direction sync.Direction, toolNames []string, autoResolve bool) error {
	confirmSides := map[sync.Side]bool{
		sync.SideSource: cfg.Settings.ConfirmDestructiveSource,
		sync.SideTarget: cfg.Settings.ConfirmDestructiveTarget,
	}
	if !confirmSides[sync.SideSource] && !confirmSides[sync.SideTarget] {
		return nil
	}

	results, err := runEngine(cmd, engine, direction, toolNames, sync.Options{DryRun: true, AutoResolve: autoResolve})
	if err != nil {
		return err
	}

	destructive := 0
	for _, result := range results {
		for _, action := range result.Actions {
			if action.Kind == sync.ActionCopy || !confirmSides[action.To] {
				continue
			}
			destructive++
			fmt.Printf("  %s %s (%s, on %s)\n", red("would remove"), action.DestructivePath(), action.Kind, action.To)
		}
	}
	if destructive > 0 {
		return fmt.Errorf("%d destructive changes pending; re-run with %s to apply or %s to inspect",
			destructive, cyan("--yes"), cyan("--dry-run"))
	}
	return nil
}

func runSpecialFiles(cfg *config.Config, direction sync.Direction, toolNames []string, dryRun bool) {
	for name, tool := range cfg.Tools {
		if !tool.Enabled || len(tool.SpecialHandling) == 0 {
			continue
		}
		if len(toolNames) > 0 && !slices.Contains(toolNames, name) {
			continue
		}

		srcRoot, dstRoot := tool.Source, tool.Target
		if direction == sync.DirectionPull {
			srcRoot, dstRoot = tool.Target, tool.Source
		}
		for _, result := range specialfile.RunTool(tool, srcRoot, dstRoot, dryRun) {
			switch {
			case result.Err != nil:
				fmt.Printf("  %s special file %s: %v\n", red("error"), result.Path, result.Err)
			case result.Changed:
				fmt.Printf("  %s %s\n", green("special"), result.Path)
			}
		}
	}
}

func runPropagation(cfg *config.Config, dryRun bool) {
	for _, result := range propagate.NewRunner(cfg).Run(dryRun) {
		switch {
		case result.Err != nil:
			fmt.Printf("  %s propagate: %v\n", red("error"), result.Err)
		case result.Written:
			fmt.Printf("  %s %s -> %s\n", green("propagated"), result.Source, result.Dest)
		}
	}
}

func acquireRunLock(cfg *config.Config) (func(), error) {
	if err := utils.EnsureDir(cfg.StateDir); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(cfg.StateDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another agentsync run is in progress (lock at %s)", lock.Path())
	}
	return func() { _ = lock.Unlock() }, nil
}

func totalFailed(results []*sync.SyncResult) int {
	n := 0
	for _, result := range results {
		n += result.Failed
	}
	return n
}
