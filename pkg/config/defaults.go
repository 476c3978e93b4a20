package config

import (
	"os"
	"path/filepath"
	"strings"
)

// configFileName is the name searched for in the working directory.
const configFileName = "media-mirror.yaml"

// defaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/media-mirror/config.yaml.
func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}

	return filepath.Join(homeDir, ".config", "media-mirror", "config.yaml")
}

// expandHome expands ~ in file paths to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}

// absPath expands ~ and makes path absolute. Empty paths stay empty.
func absPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return filepath.Abs(expandHome(path))
}
