//go:build !darwin

package config

import (
	"os"
	"path/filepath"
)

// secretsFilePath is a 0600 JSON file shaped {"service": {"account": "secret"}},
// the same layout fileBackend uses for config sections.
func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "cocreate", "secrets.json")
}

func keychainGet(service, account string) ([]byte, error) {
	v, ok, err := openFileBackend(secretsFilePath()).GetString(service + "." + account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSecretNotFound
	}
	return []byte(v), nil
}

func keychainSet(service, account, value string) error {
	return openFileBackend(secretsFilePath()).SetString(service+"."+account, value)
}
