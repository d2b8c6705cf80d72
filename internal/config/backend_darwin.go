//go:build darwin

package config

import (
	"os"
	"path/filepath"
)

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "designgen")
	}
	return "designgen-data"
}

func secretHint(account string) string {
	return " or macOS Keychain (service: " + secretService + ", account: " + account + ")"
}
