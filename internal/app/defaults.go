package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "PHOTOPOOL_CONFIG_PATH"
	// EnvHome overrides the base directory for photopool data.
	EnvHome = "PHOTOPOOL_HOME"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - PHOTOPOOL_CONFIG_PATH: config file location (default: ~/.config/photopool.toml)
//   - PHOTOPOOL_HOME: base directory for photopool data (default: ~/.local/share/photopool)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "photopool.toml"), nil
}

// getBaseDir falls back to the XDG data directory.
func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "photopool"), nil
}
