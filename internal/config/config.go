// Package config defines the agentsync configuration model: global settings,
// per-tool sync roots and patterns, propagation rules and special file handling.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigDir  = filepath.Join(home, ".agentsync")
	DefaultConfigPath = filepath.Join(DefaultConfigDir, "config.yaml")
	DefaultStateDir   = filepath.Join(DefaultConfigDir, "state")
	DefaultBackupDir  = filepath.Join(DefaultConfigDir, "backups")
	DefaultLogPath    = filepath.Join(DefaultConfigDir, "agentsync.log")
)

// Transform kinds form a closed set; anything else is rejected at load time.
const (
	TransformSed               = "sed"
	TransformRemoveXMLSections = "remove_xml_sections"
)

// Special handling modes form a closed set.
const (
	SpecialModeExtractKeys = "extract_keys"
)

// Settings holds global engine behavior knobs.
type Settings struct {
	BackupRetentionDays       int     `mapstructure:"backup_retention_days" yaml:"backup_retention_days"`
	BackupRetentionCount      int     `mapstructure:"backup_retention_count" yaml:"backup_retention_count"`
	AutoCleanupBackups        bool    `mapstructure:"auto_cleanup_backups" yaml:"auto_cleanup_backups"`
	CompressOldBackups        bool    `mapstructure:"compress_old_backups" yaml:"compress_old_backups"`
	FollowSymlinks            bool    `mapstructure:"follow_symlinks" yaml:"follow_symlinks"`
	RespectGitignore          bool    `mapstructure:"respect_gitignore" yaml:"respect_gitignore"`
	ConfirmDestructiveSource  bool    `mapstructure:"confirm_destructive_source" yaml:"confirm_destructive_source"`
	ConfirmDestructiveTarget  bool    `mapstructure:"confirm_destructive_target" yaml:"confirm_destructive_target"`
	DetectRenames             bool    `mapstructure:"detect_renames" yaml:"detect_renames"`
	RenameSimilarityThreshold float64 `mapstructure:"rename_similarity_threshold" yaml:"rename_similarity_threshold"`
	Workers                   int     `mapstructure:"workers" yaml:"workers"`
}

// SpecialHandling routes one file through the special-file pipeline instead of
// a plain byte copy.
type SpecialHandling struct {
	Mode            string   `mapstructure:"mode" yaml:"mode"`
	IncludeKeys     []string `mapstructure:"include_keys" yaml:"include_keys,omitempty"`
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns,omitempty"`
}

// Tool describes one consumer tool: its canonical source tree, its target tree
// and the patterns that decide which files are synced between them.
type Tool struct {
	Name            string                     `mapstructure:"-" yaml:"-"`
	Enabled         bool                       `mapstructure:"enabled" yaml:"enabled"`
	Source          string                     `mapstructure:"source" yaml:"source"`
	Target          string                     `mapstructure:"target" yaml:"target"`
	Include         []string                   `mapstructure:"include" yaml:"include,omitempty"`
	Exclude         []string                   `mapstructure:"exclude" yaml:"exclude,omitempty"`
	SpecialHandling map[string]SpecialHandling `mapstructure:"special_handling" yaml:"special_handling,omitempty"`
}

// Transform is one content transformation applied during propagation.
type Transform struct {
	Type     string   `mapstructure:"type" yaml:"type"`
	Pattern  string   `mapstructure:"pattern" yaml:"pattern,omitempty"`
	Sections []string `mapstructure:"sections" yaml:"sections,omitempty"`
}

// PropagationTarget is one destination of a propagation rule.
type PropagationTarget struct {
	Tool       string      `mapstructure:"tool" yaml:"tool,omitempty"`
	TargetFile string      `mapstructure:"target_file" yaml:"target_file,omitempty"`
	DestPath   string      `mapstructure:"dest_path" yaml:"dest_path,omitempty"`
	Transforms []Transform `mapstructure:"transforms" yaml:"transforms,omitempty"`
}

// PropagationRule copies one file across tools with optional transforms.
type PropagationRule struct {
	SourceTool string              `mapstructure:"source_tool" yaml:"source_tool,omitempty"`
	SourceFile string              `mapstructure:"source_file" yaml:"source_file,omitempty"`
	SourcePath string              `mapstructure:"source_path" yaml:"source_path,omitempty"`
	Targets    []PropagationTarget `mapstructure:"targets" yaml:"targets"`
}

type Config struct {
	Settings  Settings          `mapstructure:"settings" yaml:"settings"`
	Tools     map[string]*Tool  `mapstructure:"tools" yaml:"tools"`
	Propagate []PropagationRule `mapstructure:"propagate" yaml:"propagate,omitempty"`
	StateDir  string            `mapstructure:"state_dir" yaml:"state_dir,omitempty"`
	BackupDir string            `mapstructure:"backup_dir" yaml:"backup_dir,omitempty"`
}

// DefaultSettings mirrors the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		BackupRetentionDays:       30,
		BackupRetentionCount:      30,
		AutoCleanupBackups:        true,
		CompressOldBackups:        true,
		FollowSymlinks:            false,
		RespectGitignore:          true,
		ConfirmDestructiveSource:  true,
		ConfirmDestructiveTarget:  false,
		DetectRenames:             true,
		RenameSimilarityThreshold: 1.0,
		Workers:                   defaultWorkers(),
	}
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// SetDefaults registers every settings default on a viper instance so that an
// absent config file still yields a fully-populated Config.
func SetDefaults(v *viper.Viper) {
	def := DefaultSettings()
	v.SetDefault("settings.backup_retention_days", def.BackupRetentionDays)
	v.SetDefault("settings.backup_retention_count", def.BackupRetentionCount)
	v.SetDefault("settings.auto_cleanup_backups", def.AutoCleanupBackups)
	v.SetDefault("settings.compress_old_backups", def.CompressOldBackups)
	v.SetDefault("settings.follow_symlinks", def.FollowSymlinks)
	v.SetDefault("settings.respect_gitignore", def.RespectGitignore)
	v.SetDefault("settings.confirm_destructive_source", def.ConfirmDestructiveSource)
	v.SetDefault("settings.confirm_destructive_target", def.ConfirmDestructiveTarget)
	v.SetDefault("settings.detect_renames", def.DetectRenames)
	v.SetDefault("settings.rename_similarity_threshold", def.RenameSimilarityThreshold)
	v.SetDefault("settings.workers", def.Workers)
	v.SetDefault("state_dir", DefaultStateDir)
	v.SetDefault("backup_dir", DefaultBackupDir)
}

// FromViper unmarshals, finalizes and validates a Config.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
