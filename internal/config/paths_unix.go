//go:build !windows

package config

import "path/filepath"

// systemPath returns the platform system-wide config path: /etc/mussh/mussh.toml.
func systemPath() []string {
	return []string{filepath.Join("/etc", "mussh", configFileName)}
}
