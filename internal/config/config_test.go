package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Settings: DefaultSettings(),
		Tools: map[string]*Tool{
			"claude": {
				Enabled: true,
				Source:  t.TempDir(),
				Target:  t.TempDir(),
				Include: []string{"**/*.md"},
			},
		},
	}
	require.NoError(t, cfg.Finalize())
	return cfg
}

func TestDefaultSettings(t *testing.T) {
	def := DefaultSettings()

	assert.Equal(t, 30, def.BackupRetentionDays)
	assert.Equal(t, 30, def.BackupRetentionCount)
	assert.True(t, def.AutoCleanupBackups)
	assert.True(t, def.CompressOldBackups)
	assert.False(t, def.FollowSymlinks)
	assert.True(t, def.RespectGitignore)
	assert.True(t, def.ConfirmDestructiveSource)
	assert.False(t, def.ConfirmDestructiveTarget)
	assert.True(t, def.DetectRenames)
	assert.Equal(t, 1.0, def.RenameSimilarityThreshold)
	assert.GreaterOrEqual(t, def.Workers, 1)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig(t).Validate())
}

func TestValidateRejectsFuzzyRenameThreshold(t *testing.T) {
	cfg := validConfig(t)
	cfg.Settings.RenameSimilarityThreshold = 0.8
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsZeroWorkers(t *testing.T) {
	cfg := validConfig(t)
	cfg.Settings.Workers = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsMissingRoots(t *testing.T) {
	cfg := validConfig(t)
	cfg.Tools["claude"].Target = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsMalformedPattern(t *testing.T) {
	cfg := validConfig(t)
	cfg.Tools["claude"].Include = []string{"[unclosed"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsUnknownSpecialMode(t *testing.T) {
	cfg := validConfig(t)
	cfg.Tools["claude"].SpecialHandling = map[string]SpecialHandling{
		"settings.json": {Mode: "frobnicate", IncludeKeys: []string{"x"}},
	}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsSpecialHandlingWithoutKeys(t *testing.T) {
	cfg := validConfig(t)
	cfg.Tools["claude"].SpecialHandling = map[string]SpecialHandling{
		"settings.json": {Mode: SpecialModeExtractKeys},
	}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidatePropagationRules(t *testing.T) {
	tests := []struct {
		name string
		rule PropagationRule
	}{
		{"no source", PropagationRule{Targets: []PropagationTarget{{DestPath: "/tmp/x"}}}},
		{"no targets", PropagationRule{SourcePath: "/tmp/a"}},
		{"unknown source tool", PropagationRule{SourceTool: "ghost", SourceFile: "a.md",
			Targets: []PropagationTarget{{DestPath: "/tmp/x"}}}},
		{"target without destination", PropagationRule{SourcePath: "/tmp/a",
			Targets: []PropagationTarget{{Tool: "claude"}}}},
		{"sed without pattern", PropagationRule{SourcePath: "/tmp/a",
			Targets: []PropagationTarget{{DestPath: "/tmp/x",
				Transforms: []Transform{{Type: TransformSed}}}}}},
		{"unknown transform", PropagationRule{SourcePath: "/tmp/a",
			Targets: []PropagationTarget{{DestPath: "/tmp/x",
				Transforms: []Transform{{Type: "rot13"}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.Propagate = []PropagationRule{tt.rule}
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestFinalizeBackfillsNamesAndDirs(t *testing.T) {
	cfg := validConfig(t)
	assert.Equal(t, "claude", cfg.Tools["claude"].Name)
	assert.NotEmpty(t, cfg.StateDir)
	assert.NotEmpty(t, cfg.BackupDir)
}

func TestFromViperYAML(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yaml := `
tools:
  claude:
    enabled: true
    source: ` + srcDir + `
    target: ` + dstDir + `
    include:
      - "**/*.md"
    exclude:
      - "*.local.md"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	require.NoError(t, v.ReadInConfig())

	cfg, err := FromViper(v)
	require.NoError(t, err)

	require.Contains(t, cfg.Tools, "claude")
	assert.Equal(t, srcDir, cfg.Tools["claude"].Source)
	assert.Equal(t, []string{"*.local.md"}, cfg.Tools["claude"].Exclude)
	// Absent settings pick up the documented defaults.
	assert.True(t, cfg.Settings.DetectRenames)
	assert.Equal(t, 30, cfg.Settings.BackupRetentionDays)
}

func TestWriteStarter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteStarter(path))
	assert.FileExists(t, path)

	// A second write must not clobber user edits.
	assert.Error(t, WriteStarter(path))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Contains(t, cfg.Tools, "claude")
}
