package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentic-tools/agentsync/internal/utils"
	"gopkg.in/yaml.v3"
)

// Starter returns a minimal commented-out-free config a new user can edit.
func Starter() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Settings: DefaultSettings(),
		Tools: map[string]*Tool{
			"claude": {
				Enabled: true,
				Source:  filepath.Join(home, "agent-configs", "claude"),
				Target:  filepath.Join(home, ".claude"),
				Include: []string{"*.md", "commands/**"},
				Exclude: []string{"*.local.md"},
			},
		},
	}
}

// WriteStarter marshals a starter config to path. Refuses to overwrite.
func WriteStarter(path string) error {
	if utils.FileExists(path) {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(Starter())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
