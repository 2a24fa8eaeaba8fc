package main

import (
	"os"

	"github.com/agent462/mussh/internal/config"
)

// dumpConfig implements the global --output flag: dump the effective,
// as-loaded config instead of running anything.
func dumpConfig(cfg *config.Config) error {
	if err := config.Marshal(os.Stdout, cfg); err != nil {
		return runtimeError(err)
	}
	return nil
}
