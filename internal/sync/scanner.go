package sync

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// Scanner walks one root and produces a TreeSnapshot of every regular file
// that passes the include/exclude/ignore predicates.
type Scanner struct {
	includes       []string
	excludes       []string
	followSymlinks bool
	ignore         *IgnoreMatcher
	fp             *Fingerprinter
	workers        int
}

type ScannerOptions struct {
	Include          []string
	Exclude          []string
	FollowSymlinks   bool
	RespectGitignore bool
	Workers          int
}

// NewScanner builds a scanner for root. The ignore matcher is compiled once
// per scanner, not once per walk.
func NewScanner(root string, fp *Fingerprinter, opts ScannerOptions) *Scanner {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Scanner{
		includes:       opts.Include,
		excludes:       opts.Exclude,
		followSymlinks: opts.FollowSymlinks,
		ignore:         NewIgnoreMatcher(root, opts.RespectGitignore),
		fp:             fp,
		workers:        workers,
	}
}

// Scan walks root and returns its snapshot. A missing root yields an empty
// snapshot, not an error, so uninitialized targets participate in first runs.
// A single unreadable file is logged and skipped, never failing the scan.
func (s *Scanner) Scan(ctx context.Context, root string) (TreeSnapshot, error) {
	snapshot := make(TreeSnapshot)

	if _, err := os.Stat(root); os.IsNotExist(err) {
		return snapshot, nil
	}

	// Collect candidate paths first; fingerprinting runs in parallel after.
	var rels []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("scan: skipping unreadable entry", "path", p, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if !s.followSymlinks {
				return nil
			}
			// Symlinked directories are never traversed; only symlinks that
			// resolve to regular files are considered.
			info, err := os.Stat(p)
			if err != nil || info.IsDir() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if s.keep(rel) {
			rels = append(rels, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, rel := range rels {
		rel := rel
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fp, err := s.fp.File(filepath.Join(root, filepath.FromSlash(rel)), rel)
			if err != nil {
				slog.Warn("scan: failed to fingerprint file", "path", rel, "error", err)
				return nil
			}
			mu.Lock()
			snapshot[rel] = fp
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// keep applies the pattern predicates: a file is kept iff it matches the
// include set (or no includes exist), matches no exclude pattern and is not
// matched by an ignore file. Excludes and ignores always win over includes.
func (s *Scanner) keep(rel string) bool {
	if len(s.includes) > 0 && !matchesAny(s.includes, rel) {
		return false
	}
	if matchesAny(s.excludes, rel) {
		return false
	}
	return !s.ignore.Match(rel)
}

func matchesAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, rel) {
			return true
		}
	}
	return false
}

// MatchPattern matches a glob against a root-relative path. `**` spans
// directories; a bare filename pattern matches that name at any depth.
func MatchPattern(pattern, rel string) bool {
	pattern = filepath.ToSlash(pattern)
	rel = filepath.ToSlash(rel)

	if !strings.Contains(pattern, "/") {
		// Bare pattern: match the basename anywhere in the tree.
		ok, err := doublestar.Match(pattern, path.Base(rel))
		if err != nil {
			return false
		}
		if ok {
			return true
		}
	}

	ok, err := doublestar.Match(pattern, rel)
	if err != nil {
		return false
	}
	return ok
}
