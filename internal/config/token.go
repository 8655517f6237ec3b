package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

// GetAPIToken returns the bearer token guarding the HTTP API. The
// COCREATE_API_TOKEN environment variable wins; otherwise the token is read
// from the keychain and generated on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv("COCREATE_API_TOKEN"); tok != "" {
		return tok, nil
	}

	tok, err := kc.Get(keychainService, keychainAPIToken)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return "", fmt.Errorf("reading API token: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok = hex.EncodeToString(buf)
	if err := kc.Set(keychainService, keychainAPIToken, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
