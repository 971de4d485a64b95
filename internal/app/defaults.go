package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CHASM_CONFIG_PATH: config file location (default: ~/.config/chasm.toml)
//   - CHASM_HOME: base directory for logs and the journal (default: ~/.local/share/chasm)
//
// local_dir, the suggested working area for checkouts, is always ~/chasm-work.
func GetDefaults() (map[string]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	configPath := envOr("CHASM_CONFIG_PATH", filepath.Join(homeDir, ".config", "chasm.toml"))
	baseDir := envOr("CHASM_HOME", filepath.Join(homeDir, ".local", "share", "chasm"))

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"journal_dir": filepath.Join(baseDir, "db"),
		"local_dir":   filepath.Join(homeDir, "chasm-work"),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
