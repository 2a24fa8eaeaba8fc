//go:build windows

package config

import (
	"os"
	"path/filepath"
)

// systemPath returns the platform system-wide config path: %APPDATA%/.mussh/mussh.toml.
func systemPath() []string {
	appdata := os.Getenv("APPDATA")
	if appdata == "" {
		return nil
	}
	return []string{filepath.Join(appdata, dotDir, configFileName)}
}
