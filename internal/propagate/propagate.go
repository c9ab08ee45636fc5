// Package propagate copies individual files across tools, applying optional
// content transforms on the way. It runs outside the regular sync path: rules
// name their endpoints explicitly and never consult baselines.
package propagate

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentic-tools/agentsync/internal/config"
	"github.com/agentic-tools/agentsync/internal/utils"
)

var ErrBadSedExpression = errors.New("bad sed expression")

// Result summarizes one rule target's outcome.
type Result struct {
	Source  string
	Dest    string
	Written bool
	Err     error
}

type Runner struct {
	cfg *config.Config
}

func NewRunner(cfg *config.Config) *Runner {
	return &Runner{cfg: cfg}
}

// Run applies every propagation rule. Failures are contained per target; the
// returned results carry them.
func (r *Runner) Run(dryRun bool) []Result {
	var results []Result
	for _, rule := range r.cfg.Propagate {
		srcPath, err := r.resolveSource(rule)
		if err != nil {
			results = append(results, Result{Err: err})
			continue
		}

		content, err := os.ReadFile(srcPath)
		if err != nil {
			results = append(results, Result{Source: srcPath, Err: fmt.Errorf("read %s: %w", srcPath, err)})
			continue
		}

		for _, target := range rule.Targets {
			results = append(results, r.runTarget(srcPath, content, target, dryRun))
		}
	}
	return results
}

func (r *Runner) runTarget(srcPath string, content []byte, target config.PropagationTarget, dryRun bool) Result {
	destPath, err := r.resolveTarget(target)
	if err != nil {
		return Result{Source: srcPath, Err: err}
	}
	result := Result{Source: srcPath, Dest: destPath}

	transformed := content
	for _, transform := range target.Transforms {
		transformed, err = ApplyTransform(transformed, transform)
		if err != nil {
			result.Err = fmt.Errorf("transform for %s: %w", destPath, err)
			return result
		}
	}

	if existing, err := os.ReadFile(destPath); err == nil && bytes.Equal(existing, transformed) {
		slog.Debug("propagate: destination up to date", "dest", destPath)
		return result
	}

	if dryRun {
		slog.Info("propagate (dry run)", "source", srcPath, "dest", destPath)
		result.Written = true
		return result
	}

	if err := utils.EnsureParent(destPath); err != nil {
		result.Err = err
		return result
	}
	if err := os.WriteFile(destPath, transformed, 0o644); err != nil {
		result.Err = fmt.Errorf("write %s: %w", destPath, err)
		return result
	}

	slog.Info("propagate", "source", srcPath, "dest", destPath)
	result.Written = true
	return result
}

// Tool-relative endpoints resolve against the tool's target tree: propagation
// runs after the sync pass, so the target holds the freshly synced content and
// writes land in the live tool directory immediately.
func (r *Runner) resolveSource(rule config.PropagationRule) (string, error) {
	if rule.SourcePath != "" {
		return utils.ResolvePath(rule.SourcePath)
	}
	tool, ok := r.cfg.Tools[rule.SourceTool]
	if !ok {
		return "", fmt.Errorf("propagation rule references unknown source tool %q", rule.SourceTool)
	}
	return filepath.Join(tool.Target, filepath.FromSlash(rule.SourceFile)), nil
}

func (r *Runner) resolveTarget(target config.PropagationTarget) (string, error) {
	if target.DestPath != "" {
		return utils.ResolvePath(target.DestPath)
	}
	tool, ok := r.cfg.Tools[target.Tool]
	if !ok {
		return "", fmt.Errorf("propagation rule references unknown target tool %q", target.Tool)
	}
	return filepath.Join(tool.Target, filepath.FromSlash(target.TargetFile)), nil
}

// ApplyTransform dispatches on the transform type. Unknown types are rejected
// here as well as at config validation, so a hand-built Transform cannot slip
// through silently.
func ApplyTransform(content []byte, transform config.Transform) ([]byte, error) {
	switch transform.Type {
	case config.TransformSed:
		return ApplySed(content, transform.Pattern)
	case config.TransformRemoveXMLSections:
		return ApplyRemoveXMLSections(content, transform.Sections), nil
	default:
		return nil, fmt.Errorf("unknown transform type %q", transform.Type)
	}
}

// ApplySed applies a sed-style substitution "s<delim>pattern<delim>replacement<delim>flags".
// Any single-character delimiter works. Supported flags: g (replace all,
// otherwise first match only) and i (case-insensitive). The replacement uses
// Go regexp syntax, so capture groups are referenced as $1, $2, ...
func ApplySed(content []byte, expression string) ([]byte, error) {
	if len(expression) < 4 || expression[0] != 's' {
		return nil, fmt.Errorf("%w: %q", ErrBadSedExpression, expression)
	}
	delim := expression[1]
	parts := strings.Split(expression[2:], string(delim))
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("%w: %q", ErrBadSedExpression, expression)
	}

	pattern, replacement := parts[0], parts[1]
	var flags string
	if len(parts) == 3 {
		flags = parts[2]
	}

	global := false
	for _, flag := range flags {
		switch flag {
		case 'g':
			global = true
		case 'i':
			pattern = "(?i)" + pattern
		default:
			return nil, fmt.Errorf("%w: unsupported flag %q in %q", ErrBadSedExpression, string(flag), expression)
		}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSedExpression, err)
	}

	if global {
		return re.ReplaceAll(content, []byte(replacement)), nil
	}

	replaced := false
	return re.ReplaceAllFunc(content, func(match []byte) []byte {
		if replaced {
			return match
		}
		replaced = true
		return re.ReplaceAll(match, []byte(replacement))
	}), nil
}

// ApplyRemoveXMLSections removes <tag>...</tag> blocks and self-closing
// <tag/> markers, including the tags, for each named section. Matching is
// literal on the tag name and spans newlines; a trailing newline after the
// removed tag is consumed too.
func ApplyRemoveXMLSections(content []byte, sections []string) []byte {
	out := content
	for _, section := range sections {
		name := regexp.QuoteMeta(section)
		re := regexp.MustCompile(`(?s)<` + name + `>.*?</` + name + `>\n?|<` + name + `\s*/>\n?`)
		out = re.ReplaceAll(out, nil)
	}
	return out
}
