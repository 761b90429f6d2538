package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetConfigDir returns the carboncounter home directory. CARBONCOUNTER_HOME
// takes precedence over ~/.carboncounter.
func GetConfigDir() (string, error) {
	if home := os.Getenv("CARBONCOUNTER_HOME"); home != "" {
		return home, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".carboncounter"), nil
}

// ConfigFilePath returns the path of config.yaml inside the home directory.
func ConfigFilePath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the home directory if needed.
func EnsureConfigDir() error {
	dir, err := GetConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

// EnsureLogDir creates the parent directory of logFile. An empty path is a no-op.
func EnsureLogDir(logFile string) error {
	if logFile == "" {
		return nil
	}
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("failed to create log directory %q: %w", logDir, err)
	}
	return nil
}
