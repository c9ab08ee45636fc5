package sync

import (
	"bufio"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/agentic-tools/agentsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the tree-local override, read in addition to .gitignore.
const IgnoreFileName = ".syncignore"

// IgnoreMatcher answers "is this relative path excluded by an ignore file?"
// for one root. A nil matcher matches nothing.
type IgnoreMatcher struct {
	matcher *gitignore.GitIgnore
}

// NewIgnoreMatcher collects ignore patterns for root and compiles them.
// When respectGitignore is set, the root .gitignore plus every nested one are
// read; patterns from nested files are scoped to their directory. The
// .syncignore at the root is always read when present.
func NewIgnoreMatcher(root string, respectGitignore bool) *IgnoreMatcher {
	var lines []string

	if respectGitignore {
		lines = append(lines, collectGitignorePatterns(root)...)
	}

	syncIgnore := filepath.Join(root, IgnoreFileName)
	if utils.FileExists(syncIgnore) {
		for _, line := range readIgnoreLines(syncIgnore) {
			lines = append(lines, translateIgnorePattern(line))
		}
	}

	if len(lines) == 0 {
		return &IgnoreMatcher{}
	}
	return &IgnoreMatcher{matcher: gitignore.CompileIgnoreLines(lines...)}
}

// Match reports whether the relative path is excluded.
func (m *IgnoreMatcher) Match(rel string) bool {
	if m == nil || m.matcher == nil {
		return false
	}
	return m.matcher.MatchesPath(rel)
}

// collectGitignorePatterns reads the root .gitignore and every nested one,
// prefixing nested patterns with their directory so the whole set can be
// evaluated against root-relative paths.
func collectGitignorePatterns(root string) []string {
	var patterns []string

	rootIgnore := filepath.Join(root, ".gitignore")
	if utils.FileExists(rootIgnore) {
		for _, line := range readIgnoreLines(rootIgnore) {
			patterns = append(patterns, translateIgnorePattern(line))
		}
	}

	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || d.Name() != ".gitignore" || p == rootIgnore {
			return nil
		}

		relDir, err := filepath.Rel(root, filepath.Dir(p))
		if err != nil {
			return nil
		}
		relDir = filepath.ToSlash(relDir)

		for _, line := range readIgnoreLines(p) {
			patterns = append(patterns, scopeIgnorePattern(relDir, line))
		}
		return nil
	})

	return patterns
}

// readIgnoreLines returns the meaningful lines of an ignore file: comments,
// blanks and negations are dropped. Negation support is deliberately not
// implemented; an unreadable file is skipped with a warning.
func readIgnoreLines(path string) []string {
	file, err := os.Open(path)
	if err != nil {
		slog.Warn("failed to open ignore file", "path", path, "error", err)
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("failed to read ignore file", "path", path, "error", err)
	}
	return lines
}

// scopeIgnorePattern confines a nested ignore file's pattern to the directory
// that declared it. An any-depth pattern stays any-depth, but only below dir.
func scopeIgnorePattern(dir, pattern string) string {
	translated := translateIgnorePattern(pattern)
	return "/" + path.Join(dir, strings.TrimPrefix(translated, "/"))
}

// translateIgnorePattern normalizes one ignore line. Root-anchored patterns
// keep their leading slash (the matcher anchors those), directory patterns
// cover their contents, bare patterns match at any depth.
func translateIgnorePattern(pattern string) string {
	rooted := strings.HasPrefix(pattern, "/")
	pattern = strings.TrimLeft(pattern, "/")

	if strings.HasSuffix(pattern, "/") {
		pattern = strings.TrimRight(pattern, "/")
		if rooted {
			return "/" + pattern + "/**"
		}
		return "**/" + pattern + "/**"
	}

	if rooted {
		return "/" + pattern
	}
	return "**/" + pattern
}
