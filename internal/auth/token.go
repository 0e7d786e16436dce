// Package auth stores the collection API token in the OS keyring, falling
// back to a file for environments without one (Codespaces, CI, headless
// servers).
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name used for keyring entries.
	KeyringService = "clipper"
	// tokenKey is the keyring account key for the API token.
	tokenKey = "api-token"
	// fallbackDir holds the token file when the keyring is unavailable.
	fallbackDir = ".clipper"
)

var fileBasedCache *bool

func useFileStorage() bool {
	if fileBasedCache != nil {
		return *fileBasedCache
	}
	if os.Getenv("CODESPACES") != "" || os.Getenv("CI") != "" {
		result := true
		fileBasedCache = &result
		return true
	}

	canary := "_keyring_check_"
	err := keyring.Set(KeyringService, canary, "ok")
	result := err != nil
	fileBasedCache = &result
	if !result {
		keyring.Delete(KeyringService, canary)
	}
	if result {
		log.Debug().Msg("Keyring unavailable, using file-based token storage")
	}
	return result
}

func tokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, fallbackDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "token"), nil
}

// SaveToken persists the API token.
func SaveToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token is empty")
	}

	if !useFileStorage() {
		if err := keyring.Set(KeyringService, tokenKey, token); err == nil {
			log.Debug().Msg("Token saved to keyring")
			return nil
		}
		// Keyring refused mid-flight; fall through to the file.
	}

	path, err := tokenPath()
	if err != nil {
		return fmt.Errorf("resolve token path: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	log.Debug().Str("path", path).Msg("Token saved to file")
	return nil
}

// LoadToken returns the stored API token. The CLIPPER_TOKEN environment
// variable, when set, wins over any stored value.
func LoadToken() (string, error) {
	if token := strings.TrimSpace(os.Getenv("CLIPPER_TOKEN")); token != "" {
		return token, nil
	}

	if !useFileStorage() {
		if token, err := keyring.Get(KeyringService, tokenKey); err == nil {
			return token, nil
		}
	}

	path, err := tokenPath()
	if err != nil {
		return "", fmt.Errorf("resolve token path: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no stored token, run 'clipper login' first")
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// DeleteToken removes the stored token everywhere it might live.
func DeleteToken() error {
	var firstErr error
	if err := keyring.Delete(KeyringService, tokenKey); err != nil && err != keyring.ErrNotFound {
		firstErr = err
	}
	path, err := tokenPath()
	if err == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
