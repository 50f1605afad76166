// ABOUTME: XDG-based data and config directory resolution for mammoscope.
// ABOUTME: Checks XDG_DATA_HOME / XDG_CONFIG_HOME, falls back to ~/.local/share/mammoscope and ~/.config/mammoscope.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "mammoscope"

// DefaultDataDir returns the directory for persistent state such as uploads.
func DefaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", appName), nil
}

// DefaultConfigDir returns the directory searched for config.yaml.
func DefaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".config", appName), nil
}
