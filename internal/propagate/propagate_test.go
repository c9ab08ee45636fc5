package propagate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-tools/agentsync/internal/config"
)

func TestApplySed(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		in         string
		want       string
		wantErr    bool
	}{
		{
			name:       "global replace",
			expression: "s/foo/bar/g",
			in:         "foo foo foo",
			want:       "bar bar bar",
		},
		{
			name:       "first match only without g",
			expression: "s/foo/bar/",
			in:         "foo foo",
			want:       "bar foo",
		},
		{
			name:       "alternate delimiter",
			expression: "s|/old/path|/new/path|g",
			in:         "see /old/path here",
			want:       "see /new/path here",
		},
		{
			name:       "case insensitive flag",
			expression: "s/claude/assistant/gi",
			in:         "Claude and CLAUDE",
			want:       "assistant and assistant",
		},
		{
			name:       "capture groups",
			expression: `s/(\w+)@example.com/$1@corp.example.com/g`,
			in:         "mail me at dev@example.com",
			want:       "mail me at dev@corp.example.com",
		},
		{
			name:       "not a substitution",
			expression: "y/abc/xyz/",
			wantErr:    true,
		},
		{
			name:       "missing parts",
			expression: "s/foo",
			wantErr:    true,
		},
		{
			name:       "unknown flag",
			expression: "s/a/b/q",
			wantErr:    true,
		},
		{
			name:       "bad regexp",
			expression: "s/[unclosed/x/",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ApplySed([]byte(tt.in), tt.expression)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadSedExpression)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestApplyRemoveXMLSections(t *testing.T) {
	in := []byte("keep\n<private>\nsecret stuff\n</private>\nalso keep\n<other>x</other>\n")

	out := ApplyRemoveXMLSections(in, []string{"private"})
	assert.Equal(t, "keep\nalso keep\n<other>x</other>\n", string(out))

	out = ApplyRemoveXMLSections(in, []string{"private", "other"})
	assert.Equal(t, "keep\nalso keep\n", string(out))

	// Absent sections are a no-op.
	out = ApplyRemoveXMLSections(in, []string{"missing"})
	assert.Equal(t, string(in), string(out))

	// Self-closing markers go too.
	out = ApplyRemoveXMLSections([]byte("a\n<private/>\nb\n"), []string{"private"})
	assert.Equal(t, "a\nb\n", string(out))
}

func TestApplyTransformUnknownType(t *testing.T) {
	_, err := ApplyTransform([]byte("x"), config.Transform{Type: "rot13"})
	assert.Error(t, err)
}

func testConfigWithTools(t *testing.T) (*config.Config, string, string) {
	t.Helper()
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	cfg := &config.Config{
		Settings: config.DefaultSettings(),
		Tools: map[string]*config.Tool{
			"claude": {Name: "claude", Enabled: true, Source: srcRoot, Target: srcRoot},
			"cursor": {Name: "cursor", Enabled: true, Source: dstRoot, Target: dstRoot},
		},
	}
	return cfg, srcRoot, dstRoot
}

func TestRunnerPropagatesWithTransforms(t *testing.T) {
	cfg, srcRoot, dstRoot := testConfigWithTools(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(srcRoot, "AGENTS.md"),
		[]byte("# Rules\n<claude-only>\nhidden\n</claude-only>\nUse claude style.\n"), 0o644))

	cfg.Propagate = []config.PropagationRule{{
		SourceTool: "claude",
		SourceFile: "AGENTS.md",
		Targets: []config.PropagationTarget{{
			Tool:       "cursor",
			TargetFile: "RULES.md",
			Transforms: []config.Transform{
				{Type: config.TransformRemoveXMLSections, Sections: []string{"claude-only"}},
				{Type: config.TransformSed, Pattern: "s/claude/cursor/g"},
			},
		}},
	}}

	results := NewRunner(cfg).Run(false)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.True(t, results[0].Written)

	out, err := os.ReadFile(filepath.Join(dstRoot, "RULES.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Rules\nUse cursor style.\n", string(out))
}

func TestRunnerToolEndpointsResolveAgainstTargetTree(t *testing.T) {
	claudeTarget := t.TempDir()
	cursorSource := t.TempDir()
	cursorTarget := t.TempDir()
	cfg := &config.Config{
		Settings: config.DefaultSettings(),
		Tools: map[string]*config.Tool{
			"claude": {Name: "claude", Enabled: true, Source: t.TempDir(), Target: claudeTarget},
			"cursor": {Name: "cursor", Enabled: true, Source: cursorSource, Target: cursorTarget},
		},
	}

	// Only the target tree holds the synced content; the canonical source is
	// stale and must not be consulted.
	require.NoError(t, os.WriteFile(filepath.Join(claudeTarget, "AGENTS.md"), []byte("live"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Tools["claude"].Source, "AGENTS.md"), []byte("stale"), 0o644))

	cfg.Propagate = []config.PropagationRule{{
		SourceTool: "claude",
		SourceFile: "AGENTS.md",
		Targets:    []config.PropagationTarget{{Tool: "cursor", TargetFile: "AGENTS.md"}},
	}}

	results := NewRunner(cfg).Run(false)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	out, err := os.ReadFile(filepath.Join(cursorTarget, "AGENTS.md"))
	require.NoError(t, err)
	assert.Equal(t, "live", string(out))
	assert.NoFileExists(t, filepath.Join(cursorSource, "AGENTS.md"))
}

func TestRunnerSkipsUpToDateDestination(t *testing.T) {
	cfg, srcRoot, dstRoot := testConfigWithTools(t)
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "a.md"), []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dstRoot, "a.md"), []byte("same"), 0o644))

	cfg.Propagate = []config.PropagationRule{{
		SourceTool: "claude",
		SourceFile: "a.md",
		Targets:    []config.PropagationTarget{{Tool: "cursor", TargetFile: "a.md"}},
	}}

	results := NewRunner(cfg).Run(false)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.False(t, results[0].Written)
}

func TestRunnerDryRunWritesNothing(t *testing.T) {
	cfg, srcRoot, dstRoot := testConfigWithTools(t)
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "a.md"), []byte("content"), 0o644))

	cfg.Propagate = []config.PropagationRule{{
		SourceTool: "claude",
		SourceFile: "a.md",
		Targets:    []config.PropagationTarget{{Tool: "cursor", TargetFile: "a.md"}},
	}}

	results := NewRunner(cfg).Run(true)
	require.Len(t, results, 1)
	assert.True(t, results[0].Written)
	assert.NoFileExists(t, filepath.Join(dstRoot, "a.md"))
}

func TestRunnerExplicitPaths(t *testing.T) {
	cfg, _, _ := testConfigWithTools(t)
	srcPath := filepath.Join(t.TempDir(), "global.md")
	dstPath := filepath.Join(t.TempDir(), "nested", "copy.md")
	require.NoError(t, os.WriteFile(srcPath, []byte("x"), 0o644))

	cfg.Propagate = []config.PropagationRule{{
		SourcePath: srcPath,
		Targets:    []config.PropagationTarget{{DestPath: dstPath}},
	}}

	results := NewRunner(cfg).Run(false)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.FileExists(t, dstPath)
}

func TestRunnerUnknownToolIsContained(t *testing.T) {
	cfg, srcRoot, _ := testConfigWithTools(t)
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "a.md"), []byte("x"), 0o644))

	cfg.Propagate = []config.PropagationRule{
		{SourceTool: "ghost", SourceFile: "a.md", Targets: []config.PropagationTarget{{Tool: "cursor", TargetFile: "a.md"}}},
		{SourceTool: "claude", SourceFile: "a.md", Targets: []config.PropagationTarget{{Tool: "cursor", TargetFile: "b.md"}}},
	}

	results := NewRunner(cfg).Run(false)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err, "later rules still run")
}
