package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/agentic-tools/agentsync/internal/config"
)

// BaselineStore persists the last-synced snapshot per tool and side. A nil
// snapshot from Load means no baseline exists yet (first run).
type BaselineStore interface {
	Load(tool string, side Side) (TreeSnapshot, error)
	Save(tool string, side Side, snapshot TreeSnapshot) error
}

// Engine drives one full reconciliation: scan, classify, detect renames,
// plan, execute, persist baselines.
type Engine struct {
	cfg       *config.Config
	baselines BaselineStore
	backups   BackupStore
	fp        *Fingerprinter
}

// Options tweak a single run.
type Options struct {
	DryRun bool
	// AutoResolve settles bidirectional conflicts by most-recent-mtime-wins
	// instead of leaving them for manual resolution.
	AutoResolve bool
}

func NewEngine(cfg *config.Config, baselines BaselineStore, backups BackupStore) *Engine {
	return &Engine{
		cfg:       cfg,
		baselines: baselines,
		backups:   backups,
		fp:        NewFingerprinter(),
	}
}

// SyncTool reconciles one tool's source and target trees in the given
// direction. Unknown or disabled tools are errors; everything that goes wrong
// past planning is contained per-action in the result instead.
func (e *Engine) SyncTool(ctx context.Context, name string, direction Direction, opts Options) (*SyncResult, error) {
	tool, ok := e.cfg.Tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	if !tool.Enabled {
		return nil, fmt.Errorf("%w: %q", ErrToolDisabled, name)
	}

	slog.Debug("sync start", "tool", name, "direction", direction, "dryRun", opts.DryRun)

	source, err := e.scanSide(ctx, tool, SideSource, tool.Source)
	if err != nil {
		return nil, err
	}
	target, err := e.scanSide(ctx, tool, SideTarget, tool.Target)
	if err != nil {
		return nil, err
	}

	if err := e.classify(name, source); err != nil {
		return nil, err
	}
	if err := e.classify(name, target); err != nil {
		return nil, err
	}

	renames, err := e.detectRenames(source, target)
	if err != nil {
		return nil, err
	}

	plan, err := BuildPlan(source, target, renames, direction, PlanOptions{AutoResolve: opts.AutoResolve})
	if err != nil {
		return nil, err
	}

	// Backups before destructive actions are unconditional on both sides;
	// confirm_destructive_* only gates the CLI preflight.
	executor := NewExecutor(e.fp, ExecutorOptions{
		SourceRoot:       source.Root,
		TargetRoot:       target.Root,
		Backups:          e.backups,
		BackupSourceSide: true,
		BackupTargetSide: true,
		Workers:          e.cfg.Settings.Workers,
	})
	result := executor.Execute(ctx, plan, opts.DryRun)
	result.Tool = name
	result.Direction = direction

	if !opts.DryRun {
		if err := e.saveBaselines(ctx, tool, name); err != nil {
			return result, fmt.Errorf("persist baselines for %q: %w", name, err)
		}
	}

	slog.Info("sync done", "tool", name, "direction", direction,
		"copied", result.Copied, "deleted", result.Deleted, "renamed", result.Renamed,
		"skipped", result.Skipped, "failed", result.Failed, "conflicts", len(result.Conflicts))
	return result, nil
}

// SyncAll runs every enabled tool in name order. Per-tool errors are joined,
// not fatal to the remaining tools.
func (e *Engine) SyncAll(ctx context.Context, direction Direction, opts Options) ([]*SyncResult, error) {
	names := make([]string, 0, len(e.cfg.Tools))
	for name, tool := range e.cfg.Tools {
		if !tool.Enabled {
			slog.Debug("skipping disabled tool", "tool", name)
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var results []*SyncResult
	var errs []error
	for _, name := range names {
		result, err := e.SyncTool(ctx, name, direction, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

func (e *Engine) scanSide(ctx context.Context, tool *config.Tool, side Side, root string) (*SideState, error) {
	scanner := NewScanner(root, e.fp, e.scannerOptions(tool))
	snapshot, err := scanner.Scan(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("scan %s %s: %w", side, root, err)
	}
	return &SideState{Side: side, Root: root, Snapshot: snapshot}, nil
}

func (e *Engine) scannerOptions(tool *config.Tool) ScannerOptions {
	// Specially-handled files travel through their own pipeline, never the
	// byte-for-byte sync path.
	excludes := append([]string{}, tool.Exclude...)
	for rel := range tool.SpecialHandling {
		excludes = append(excludes, rel)
	}
	return ScannerOptions{
		Include:          tool.Include,
		Exclude:          excludes,
		FollowSymlinks:   e.cfg.Settings.FollowSymlinks,
		RespectGitignore: e.cfg.Settings.RespectGitignore,
		Workers:          e.cfg.Settings.Workers,
	}
}

func (e *Engine) classify(tool string, state *SideState) error {
	baseline, err := e.baselines.Load(tool, state.Side)
	if err != nil {
		return fmt.Errorf("load %s baseline for %q: %w", state.Side, tool, err)
	}
	state.Diff = Classify(state.Snapshot, baseline)
	return nil
}

// detectRenames runs per side over that side's own diff; candidates are only
// checksum pairings here, the planner decides which survive.
func (e *Engine) detectRenames(source, target *SideState) (*RenameSet, error) {
	renames := &RenameSet{}
	if !e.cfg.Settings.DetectRenames {
		return renames, nil
	}

	threshold := e.cfg.Settings.RenameSimilarityThreshold
	var err error
	if renames.Source, err = e.detectSide(source, threshold); err != nil {
		return nil, err
	}
	if renames.Target, err = e.detectSide(target, threshold); err != nil {
		return nil, err
	}
	return renames, nil
}

func (e *Engine) detectSide(state *SideState, threshold float64) ([]RenameCandidate, error) {
	deleted := make(map[string]string, len(state.Diff.Deleted))
	for rel, print := range state.Diff.Deleted {
		deleted[rel] = print.Checksum
	}
	added := make(map[string]string, len(state.Diff.Added))
	for rel := range state.Diff.Added {
		added[rel] = filepath.Join(state.Root, filepath.FromSlash(rel))
	}
	return DetectRenames(deleted, added, threshold, e.fp)
}

// saveBaselines rescans both trees after execution and records what is
// actually on disk, partial failures included. A crash mid-run leaves the old
// baseline untouched since Save replaces atomically.
func (e *Engine) saveBaselines(ctx context.Context, tool *config.Tool, name string) error {
	for _, side := range []struct {
		side Side
		root string
	}{
		{SideSource, tool.Source},
		{SideTarget, tool.Target},
	} {
		scanner := NewScanner(side.root, e.fp, e.scannerOptions(tool))
		snapshot, err := scanner.Scan(ctx, side.root)
		if err != nil {
			return err
		}
		if err := e.baselines.Save(name, side.side, snapshot); err != nil {
			return err
		}
	}
	return nil
}
