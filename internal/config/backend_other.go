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
			return "designgen-data"
		}
	}
	return filepath.Join(dir, "designgen")
}

func secretHint(account string) string {
	return " or " + secretsFilePath() + " (" + secretService + "." + account + ")"
}
