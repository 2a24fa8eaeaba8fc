package config

import (
	"os"
	"path/filepath"
)

const (
	dotDir         = ".mussh"
	configFileName = "mussh.toml"
)

// DiscoverPath returns the first readable config path: an explicit path,
// <CWD>/.mussh/mussh.toml, <HOME>/.mussh/[<hostname>/]mussh.toml, then the
// platform system path. It returns "" if none of the candidates can be
// opened for reading.
func DiscoverPath(explicit string) string {
	for _, p := range candidatePaths(explicit) {
		if p == "" {
			continue
		}
		if f, err := os.Open(p); err == nil {
			f.Close()
			return p
		}
	}
	return ""
}

func candidatePaths(explicit string) []string {
	var paths []string

	if explicit != "" {
		paths = append(paths, explicit)
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, dotDir, configFileName))
	}

	if home, err := os.UserHomeDir(); err == nil {
		if hostname, err := os.Hostname(); err == nil && hostname != "" {
			paths = append(paths, filepath.Join(home, dotDir, hostname, configFileName))
		}
		paths = append(paths, filepath.Join(home, dotDir, configFileName))
	}

	paths = append(paths, systemPath()...)

	return paths
}
