package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const secretFileName = "secret"

// SigningSecret returns configured when it is set. Otherwise it falls back
// to the secret persisted under dir, creating one on first use.
func SigningSecret(configured, dir string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if dir == "" {
		return "", fmt.Errorf("no signing secret configured and no secret directory to store one")
	}
	return LoadOrCreateSecret(dir)
}

// LoadOrCreateSecret reads the secret from dir/secret, or generates and
// persists a new 256-bit hex-encoded secret if the file is missing or empty.
func LoadOrCreateSecret(dir string) (string, error) {
	path := filepath.Join(dir, secretFileName)

	data, err := os.ReadFile(path) //nolint:gosec // path is built from the configured secret dir
	if err == nil {
		if secret := strings.TrimSpace(string(data)); secret != "" {
			return secret, nil
		}
	}

	slog.Info("generating token signing secret", "path", path)
	return replaceSecret(dir, path)
}

// RotateSecret replaces the stored secret. Every token signed with the old
// secret stops verifying.
func RotateSecret(dir string) (string, error) {
	return replaceSecret(dir, filepath.Join(dir, secretFileName))
}

func replaceSecret(dir, path string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(b)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create secret dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret), 0600); err != nil {
		return "", fmt.Errorf("write secret: %w", err)
	}
	return secret, nil
}
