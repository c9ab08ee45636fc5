// Package specialfile handles files too structured for a byte copy. The only
// mode today is extract_keys: lift selected top-level keys out of a JSON
// document and merge them into the destination, leaving the destination's
// other keys alone.
package specialfile

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"

	"github.com/agentic-tools/agentsync/internal/config"
	"github.com/agentic-tools/agentsync/internal/utils"
)

var ErrNotJSONObject = errors.New("special file is not a JSON object")

// Result is one special-handling rule's outcome.
type Result struct {
	Path    string
	Changed bool
	Err     error
}

// RunTool applies every special-handling rule of one tool from srcRoot onto
// dstRoot. The caller picks the roots according to sync direction. Rule paths
// are sorted so runs are deterministic.
func RunTool(tool *config.Tool, srcRoot, dstRoot string, dryRun bool) []Result {
	paths := make([]string, 0, len(tool.SpecialHandling))
	for rel := range tool.SpecialHandling {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	var results []Result
	for _, rel := range paths {
		handling := tool.SpecialHandling[rel]
		srcPath := filepath.Join(srcRoot, filepath.FromSlash(rel))
		dstPath := filepath.Join(dstRoot, filepath.FromSlash(rel))

		if _, err := os.Stat(srcPath); errors.Is(err, os.ErrNotExist) {
			slog.Debug("special file missing at source, skipping", "path", rel)
			continue
		}

		changed, err := Process(srcPath, dstPath, handling, dryRun)
		results = append(results, Result{Path: rel, Changed: changed, Err: err})
	}
	return results
}

// Process applies one special-handling rule from srcPath onto dstPath.
// Returns whether the destination changed (or would change, in dry-run).
func Process(srcPath, dstPath string, handling config.SpecialHandling, dryRun bool) (bool, error) {
	switch handling.Mode {
	case config.SpecialModeExtractKeys:
		return processExtractKeys(srcPath, dstPath, handling, dryRun)
	default:
		return false, fmt.Errorf("unknown special handling mode %q", handling.Mode)
	}
}

func processExtractKeys(srcPath, dstPath string, handling config.SpecialHandling, dryRun bool) (bool, error) {
	source, err := readObject(srcPath)
	if err != nil {
		return false, err
	}

	extracted := ExtractKeys(source, handling.IncludeKeys, handling.ExcludePatterns)

	// A missing destination starts from an empty document.
	dest := map[string]any{}
	if existing, err := readObject(dstPath); err == nil {
		dest = existing
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	merged := MergeKeys(dest, extracted)

	out, err := encode(merged)
	if err != nil {
		return false, err
	}
	if existing, err := os.ReadFile(dstPath); err == nil && bytes.Equal(existing, out) {
		return false, nil
	}

	if dryRun {
		slog.Info("special file (dry run)", "source", srcPath, "dest", dstPath, "mode", handling.Mode)
		return true, nil
	}

	if err := utils.EnsureParent(dstPath); err != nil {
		return false, err
	}
	if err := os.WriteFile(dstPath, out, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", dstPath, err)
	}
	slog.Info("special file", "source", srcPath, "dest", dstPath, "mode", handling.Mode)
	return true, nil
}

// ExtractKeys pulls the named top-level keys out of doc. When an extracted
// value is itself an object, excludePatterns are glob-matched against its
// child key names and matching children are dropped.
func ExtractKeys(doc map[string]any, includeKeys, excludePatterns []string) map[string]any {
	out := make(map[string]any, len(includeKeys))
	for _, key := range includeKeys {
		value, ok := doc[key]
		if !ok {
			continue
		}
		if nested, ok := value.(map[string]any); ok && len(excludePatterns) > 0 {
			filtered := make(map[string]any, len(nested))
			for childKey, childValue := range nested {
				if matchesAnyPattern(excludePatterns, childKey) {
					continue
				}
				filtered[childKey] = childValue
			}
			value = filtered
		}
		out[key] = value
	}
	return out
}

// MergeKeys overlays extracted onto dest, overwriting only the extracted
// keys. dest's remaining keys survive untouched.
func MergeKeys(dest, extracted map[string]any) map[string]any {
	merged := make(map[string]any, len(dest)+len(extracted))
	for key, value := range dest {
		merged[key] = value
	}
	for key, value := range extracted {
		merged[key] = value
	}
	return merged
}

func matchesAnyPattern(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func readObject(p string) (map[string]any, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotJSONObject, p, err)
	}
	return doc, nil
}

func encode(doc map[string]any) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
