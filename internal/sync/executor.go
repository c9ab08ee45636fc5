package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/agentic-tools/agentsync/internal/utils"
	"golang.org/x/sync/errgroup"
)

// BackupStore is the externally-owned backup collaborator. Backup must be
// synchronous and durable before returning.
type BackupStore interface {
	Backup(absPath string) (backupPath string, err error)
}

// Executor applies a plan to the two trees. Failures on one action are
// collected and do not abort the remaining actions.
type Executor struct {
	roots   map[Side]string
	backups BackupStore
	// requireBackup controls, per side, whether destructive actions on that
	// side's tree must be preceded by a backup.
	requireBackup map[Side]bool
	fp            *Fingerprinter
	workers       int
}

type ExecutorOptions struct {
	SourceRoot       string
	TargetRoot       string
	Backups          BackupStore
	BackupSourceSide bool
	BackupTargetSide bool
	Workers          int
}

func NewExecutor(fp *Fingerprinter, opts ExecutorOptions) *Executor {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		roots: map[Side]string{
			SideSource: opts.SourceRoot,
			SideTarget: opts.TargetRoot,
		},
		backups: opts.Backups,
		requireBackup: map[Side]bool{
			SideSource: opts.BackupSourceSide,
			SideTarget: opts.BackupTargetSide,
		},
		fp:      fp,
		workers: workers,
	}
}

// Execute applies every action in the plan. With dryRun set nothing on disk
// is touched and the result simply echoes the deterministic action list, so a
// preview is byte-identical to what a real run would consume.
func (e *Executor) Execute(ctx context.Context, plan *Plan, dryRun bool) *SyncResult {
	result := &SyncResult{
		DryRun:    dryRun,
		Actions:   plan.Actions,
		Conflicts: plan.Conflicts,
		BackedUp:  make(map[string]bool),
	}

	if dryRun {
		for _, action := range plan.Actions {
			switch action.Kind {
			case ActionCopy:
				result.Copied++
			case ActionDelete:
				result.Deleted++
			case ActionRename:
				result.Renamed++
			}
		}
		return result
	}

	var mu gosync.Mutex
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, action := range plan.Actions {
		action := action
		g.Go(func() error {
			if ctx.Err() != nil {
				// Run-level cancellation stops scheduling; in-flight actions
				// have already completed by the time we get here.
				return nil
			}

			outcome, backedUp, err := e.apply(action)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Failures = append(result.Failures, ActionFailure{Action: action, Err: err.Error()})
				slog.Error("sync action failed", "kind", action.Kind, "path", action.Path, "error", err)
				return nil
			}
			switch outcome {
			case outcomeCopied:
				result.Copied++
			case outcomeDeleted:
				result.Deleted++
			case outcomeRenamed:
				result.Renamed++
			case outcomeSkipped:
				result.Skipped++
			}
			if backedUp {
				if action.Kind == ActionRename {
					result.BackedUp[action.RenameFrom] = true
				} else {
					result.BackedUp[action.Path] = true
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return result
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCopied
	outcomeDeleted
	outcomeRenamed
)

func (e *Executor) apply(action Action) (outcome, bool, error) {
	switch action.Kind {
	case ActionCopy:
		return e.applyCopy(action)
	case ActionDelete:
		backedUp, err := e.deleteWithBackup(action.To, action.Path)
		if err != nil {
			return 0, false, err
		}
		slog.Info("sync", "op", ActionDelete, "side", action.To, "path", action.Path)
		return outcomeDeleted, backedUp, nil
	case ActionRename:
		return e.applyRename(action)
	default:
		return 0, false, fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func (e *Executor) applyCopy(action Action) (outcome, bool, error) {
	srcAbs := filepath.Join(e.roots[action.From], filepath.FromSlash(action.Path))
	dstAbs := filepath.Join(e.roots[action.To], filepath.FromSlash(action.Path))

	// Re-check content on disk; identical destinations are left alone to
	// avoid needless mtime churn.
	dst, err := e.fp.File(dstAbs, action.Path)
	onDisk := err == nil
	if onDisk && dst.Equal(action.Fingerprint) {
		return outcomeSkipped, false, nil
	}

	// Overwriting divergent content destroys it just as surely as a delete,
	// so it gets the same backup-first treatment.
	backedUp := false
	if onDisk && e.requireBackup[action.To] {
		if err := e.backupFile(dstAbs); err != nil {
			return 0, false, fmt.Errorf("backup before overwrite %s: %w", action.Path, err)
		}
		backedUp = true
	}

	if err := copyFileAtomic(srcAbs, dstAbs); err != nil {
		return 0, backedUp, err
	}
	slog.Info("sync", "op", ActionCopy, "from", action.From, "to", action.To, "path", action.Path)
	return outcomeCopied, backedUp, nil
}

// applyRename materializes the new path first, then removes the old one under
// the same backup discipline as a plain delete. The pair executes as a unit.
func (e *Executor) applyRename(action Action) (outcome, bool, error) {
	srcAbs := filepath.Join(e.roots[action.From], filepath.FromSlash(action.Path))
	dstAbs := filepath.Join(e.roots[action.To], filepath.FromSlash(action.Path))

	dst, err := e.fp.File(dstAbs, action.Path)
	onDisk := err == nil
	if !onDisk || !dst.Equal(action.Fingerprint) {
		if onDisk && e.requireBackup[action.To] {
			if err := e.backupFile(dstAbs); err != nil {
				return 0, false, fmt.Errorf("backup before overwrite %s: %w", action.Path, err)
			}
		}
		if err := copyFileAtomic(srcAbs, dstAbs); err != nil {
			return 0, false, err
		}
	}

	backedUp, err := e.deleteWithBackup(action.To, action.RenameFrom)
	if err != nil {
		return 0, false, fmt.Errorf("rename %s -> %s: %w", action.RenameFrom, action.Path, err)
	}

	slog.Info("sync", "op", ActionRename, "side", action.To, "from", action.RenameFrom, "to", action.Path)
	return outcomeRenamed, backedUp, nil
}

// deleteWithBackup backs the file up first when the side's policy demands it;
// a failed backup aborts the delete, never the other way around.
func (e *Executor) deleteWithBackup(side Side, rel string) (bool, error) {
	abs := filepath.Join(e.roots[side], filepath.FromSlash(rel))

	backedUp := false
	if e.requireBackup[side] {
		if err := e.backupFile(abs); err != nil {
			return false, fmt.Errorf("backup before delete %s: %w", rel, err)
		}
		backedUp = true
	}

	err := os.Remove(abs)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		// Already gone; fine.
	default:
		return false, fmt.Errorf("delete %s: %w", rel, err)
	}

	cleanupEmptyParentDirs(filepath.Dir(abs), e.roots[side])
	return backedUp, nil
}

func (e *Executor) backupFile(abs string) error {
	if e.backups == nil {
		return errors.New("backup required but no backup store configured")
	}
	_, err := e.backups.Backup(abs)
	return err
}

// copyFileAtomic writes via a temporary sibling and renames it into place,
// preserving the source's modification time.
func copyFileAtomic(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source %s: %w", src, err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("stat source %s: %w", src, err)
	}

	if err := utils.EnsureParent(dst); err != nil {
		return fmt.Errorf("ensure parent of %s: %w", dst, err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(dst), ".agentsync-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := io.Copy(tempFile, srcFile); err != nil {
		return fmt.Errorf("copy to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// CreateTemp opens 0600; carry the source's permissions over so exec bits
	// and group access survive the sync.
	if err := os.Chmod(tempPath, srcInfo.Mode().Perm()); err != nil {
		return fmt.Errorf("preserve mode: %w", err)
	}
	if err := os.Chtimes(tempPath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return fmt.Errorf("preserve mtime: %w", err)
	}
	if err := os.Rename(tempPath, dst); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", dst, err)
	}

	success = true
	return nil
}

// cleanupEmptyParentDirs removes now-empty directories between dir and root.
// OS metadata droppings do not count as content.
func cleanupEmptyParentDirs(dir, root string) {
	for dir != root && len(dir) > len(root) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}

		remaining := 0
		for _, entry := range entries {
			if entry.Name() == ".DS_Store" || entry.Name() == "Thumbs.db" {
				_ = os.Remove(filepath.Join(dir, entry.Name()))
			} else {
				remaining++
			}
		}
		if remaining > 0 {
			return
		}

		if err := os.Remove(dir); err != nil {
			return
		}
		slog.Debug("removed empty directory", "path", dir)
		dir = filepath.Dir(dir)
	}
}
