//go:build !darwin

package config

import (
	"os"
	"path/filepath"
)

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "cocreate-data"
		}
	}
	return filepath.Join(dir, "cocreate")
}

func apiKeyHint() string {
	return " or run `cocreate config set-secret llm.api_key <key>`"
}

func newPlatformBackend() ConfigBackend {
	return openFileBackend(configFilePath())
}

// configFilePath honours COCREATE_CONFIG, then $XDG_CONFIG_HOME.
func configFilePath() string {
	if p := os.Getenv(configPathEnv); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "cocreate", "config.json")
}
