package config

import (
	"errors"
	"fmt"

	"github.com/agentic-tools/agentsync/internal/utils"
	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalid marks configuration errors. They are fatal and raised before any
// filesystem mutation.
var ErrInvalid = errors.New("invalid configuration")

// Finalize resolves paths and back-fills tool names after unmarshalling.
func (c *Config) Finalize() error {
	if c.Tools == nil {
		c.Tools = map[string]*Tool{}
	}

	for name, tool := range c.Tools {
		tool.Name = name

		var err error
		if tool.Source != "" {
			if tool.Source, err = utils.ResolvePath(tool.Source); err != nil {
				return fmt.Errorf("%w: tool %q source: %v", ErrInvalid, name, err)
			}
		}
		if tool.Target != "" {
			if tool.Target, err = utils.ResolvePath(tool.Target); err != nil {
				return fmt.Errorf("%w: tool %q target: %v", ErrInvalid, name, err)
			}
		}
	}

	var err error
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.StateDir, err = utils.ResolvePath(c.StateDir); err != nil {
		return fmt.Errorf("%w: state_dir: %v", ErrInvalid, err)
	}
	if c.BackupDir == "" {
		c.BackupDir = DefaultBackupDir
	}
	if c.BackupDir, err = utils.ResolvePath(c.BackupDir); err != nil {
		return fmt.Errorf("%w: backup_dir: %v", ErrInvalid, err)
	}

	return nil
}

// Validate rejects malformed patterns, unknown transform kinds and unsupported
// rename thresholds before the engine touches the filesystem.
func (c *Config) Validate() error {
	if c.Settings.RenameSimilarityThreshold != 1.0 {
		return fmt.Errorf("%w: rename_similarity_threshold %v not supported, only exact matching (1.0) is implemented",
			ErrInvalid, c.Settings.RenameSimilarityThreshold)
	}
	if c.Settings.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalid, c.Settings.Workers)
	}

	for name, tool := range c.Tools {
		if tool.Source == "" {
			return fmt.Errorf("%w: tool %q has no source directory", ErrInvalid, name)
		}
		if tool.Target == "" {
			return fmt.Errorf("%w: tool %q has no target directory", ErrInvalid, name)
		}

		for _, pattern := range tool.Include {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("%w: tool %q include pattern %q is malformed", ErrInvalid, name, pattern)
			}
		}
		for _, pattern := range tool.Exclude {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("%w: tool %q exclude pattern %q is malformed", ErrInvalid, name, pattern)
			}
		}

		for file, handling := range tool.SpecialHandling {
			if handling.Mode != SpecialModeExtractKeys {
				return fmt.Errorf("%w: tool %q special_handling for %q has unknown mode %q",
					ErrInvalid, name, file, handling.Mode)
			}
			if len(handling.IncludeKeys) == 0 {
				return fmt.Errorf("%w: tool %q special_handling for %q requires include_keys",
					ErrInvalid, name, file)
			}
		}
	}

	for i, rule := range c.Propagate {
		if err := c.validatePropagationRule(i, rule); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validatePropagationRule(i int, rule PropagationRule) error {
	hasPath := rule.SourcePath != ""
	hasToolFile := rule.SourceTool != "" && rule.SourceFile != ""
	if !hasPath && !hasToolFile {
		return fmt.Errorf("%w: propagate[%d] must set source_path or source_tool+source_file", ErrInvalid, i)
	}
	if rule.SourceTool != "" {
		if _, ok := c.Tools[rule.SourceTool]; !ok {
			return fmt.Errorf("%w: propagate[%d] references unknown tool %q", ErrInvalid, i, rule.SourceTool)
		}
	}
	if len(rule.Targets) == 0 {
		return fmt.Errorf("%w: propagate[%d] has no targets", ErrInvalid, i)
	}

	for j, target := range rule.Targets {
		hasDest := target.DestPath != ""
		hasToolFile := target.Tool != "" && target.TargetFile != ""
		if !hasDest && !hasToolFile {
			return fmt.Errorf("%w: propagate[%d].targets[%d] must set dest_path or tool+target_file", ErrInvalid, i, j)
		}
		if target.Tool != "" {
			if _, ok := c.Tools[target.Tool]; !ok {
				return fmt.Errorf("%w: propagate[%d].targets[%d] references unknown tool %q", ErrInvalid, i, j, target.Tool)
			}
		}

		for k, transform := range target.Transforms {
			switch transform.Type {
			case TransformSed:
				if transform.Pattern == "" {
					return fmt.Errorf("%w: propagate[%d].targets[%d].transforms[%d] sed requires a pattern", ErrInvalid, i, j, k)
				}
			case TransformRemoveXMLSections:
				if len(transform.Sections) == 0 {
					return fmt.Errorf("%w: propagate[%d].targets[%d].transforms[%d] remove_xml_sections requires sections", ErrInvalid, i, j, k)
				}
			default:
				return fmt.Errorf("%w: propagate[%d].targets[%d].transforms[%d] has unknown type %q", ErrInvalid, i, j, k, transform.Type)
			}
		}
	}

	return nil
}
