package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// GetAPIToken returns the bearer token protecting the management API.
// Resolution order: RELAY_API_TOKEN env var, then the platform secret store.
func GetAPIToken() (string, error) {
	if tok := os.Getenv("RELAY_API_TOKEN"); tok != "" {
		return tok, nil
	}
	out, err := keychainGet(serviceName, accountToken)
	if err != nil {
		return "", fmt.Errorf("no API token configured: %w", err)
	}
	tok := strings.TrimSpace(string(out))
	if tok == "" {
		return "", fmt.Errorf("no API token configured")
	}
	return tok, nil
}

// EnsureAPIToken returns the existing API token, generating and persisting a
// new random one on first use.
func EnsureAPIToken() (string, error) {
	if tok, err := GetAPIToken(); err == nil {
		return tok, nil
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)

	if err := keychainSet(serviceName, accountToken, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
