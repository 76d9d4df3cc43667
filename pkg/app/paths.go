package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	appName    = "rolechat"
	configFile = "rolechat.yaml"
)

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/rolechat/rolechat.yaml → ~/.config/rolechat/rolechat.yaml → ./rolechat.yaml
func ResolveConfigPath() (string, error) {
	candidates := []string{DefaultConfigPath(), configFile}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where setup writes the configuration.
func DefaultConfigPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		return filepath.Join(xdg, appName, configFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName, configFile)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/rolechat if set, otherwise ~/.local/share/rolechat.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", appName)
}
