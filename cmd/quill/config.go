// config.go resolves and loads the configuration file for the CLI.
package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/haasonsaas/quill/internal/config"
)

// defaultConfigName is looked up in the working directory and under the user
// config dir.
const defaultConfigName = "quill.yaml"

// resolveConfigPath picks the config file: explicit flag, then QUILL_CONFIG,
// then quill.yaml in the working directory, then ~/.config/quill/quill.yaml.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("QUILL_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}
	if dir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(dir, "quill", defaultConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return defaultConfigName
}

// loadConfig loads the resolved path, falling back to built-in defaults when
// no file exists.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}
