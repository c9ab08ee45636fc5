package sync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanTree(t *testing.T, root string, opts ScannerOptions) TreeSnapshot {
	t.Helper()
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	snap, err := NewScanner(root, NewFingerprinter(), opts).Scan(context.Background(), root)
	require.NoError(t, err)
	return snap
}

func TestScanMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")
	snap := scanTree(t, root, ScannerOptions{})
	assert.Empty(t, snap)
}

func TestScanCollectsRelativePaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md":         "alpha",
		"deep/b.md":    "beta",
		"deep/er/c.md": "gamma",
	})

	snap := scanTree(t, root, ScannerOptions{})

	require.Len(t, snap, 3)
	assert.Contains(t, snap, "a.md")
	assert.Contains(t, snap, "deep/b.md")
	assert.Contains(t, snap, "deep/er/c.md")
	assert.Equal(t, int64(5), snap["a.md"].Size)
}

func TestScanIncludeExcludePrecedence(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.md":         "x",
		"skip.txt":        "x",
		"secrets/keep.md": "x",
		"notes/draft.md":  "x",
	})

	snap := scanTree(t, root, ScannerOptions{
		Include: []string{"**/*.md"},
		Exclude: []string{"secrets/**"},
	})

	assert.Contains(t, snap, "keep.md")
	assert.Contains(t, snap, "notes/draft.md")
	assert.NotContains(t, snap, "skip.txt", "not matched by include")
	assert.NotContains(t, snap, "secrets/keep.md", "exclude wins over include")
}

func TestScanBarePatternMatchesAnyDepth(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"config.json":     "{}",
		"sub/config.json": "{}",
		"sub/other.yaml":  "x",
	})

	snap := scanTree(t, root, ScannerOptions{Include: []string{"config.json"}})

	assert.Contains(t, snap, "config.json")
	assert.Contains(t, snap, "sub/config.json")
	assert.NotContains(t, snap, "sub/other.yaml")
}

func TestScanRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore": "*.log\n",
		"keep.md":    "x",
		"noise.log":  "x",
	})

	snap := scanTree(t, root, ScannerOptions{
		Include:          []string{"**/*"},
		RespectGitignore: true,
	})

	assert.Contains(t, snap, "keep.md")
	assert.NotContains(t, snap, "noise.log")
	// The ignore file itself is a regular file and not auto-excluded; the
	// include set decides.
	assert.Contains(t, snap, ".gitignore")
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		rel     string
		want    bool
	}{
		{"**/*.md", "a.md", true},
		{"**/*.md", "deep/a.md", true},
		{"**/*.md", "a.txt", false},
		{"docs/**", "docs/a/b.md", true},
		{"docs/**", "other/a.md", false},
		{"*.json", "sub/settings.json", true}, // bare pattern, any depth
		{"sub/*.json", "sub/settings.json", true},
		{"sub/*.json", "sub/deep/settings.json", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchPattern(tt.pattern, tt.rel), "MatchPattern(%q, %q)", tt.pattern, tt.rel)
	}
}
