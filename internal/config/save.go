package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Marshal renders cfg in the spec.md §6 TOML wire format, the same
// rendering SaveAtomic writes to disk and the "--output" flag dumps to
// stdout.
func Marshal(w io.Writer, cfg *Config) error {
	return toml.NewEncoder(w).Encode(toWire(cfg))
}

// SaveAtomic writes cfg to path as TOML, preserving the previous file (if
// any) as a ".bak" sibling before the rename. Editing
// flows (add/remove/update of hosts/groups/cmds) must write through an
// atomic rename with a sibling backup file.
func SaveAtomic(path string, cfg *Config) error {
	var buf bytes.Buffer
	if err := Marshal(&buf, cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("backup existing config: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp config into place: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// AddHost inserts or replaces a host entry.
func (c *Config) AddHost(h Host) {
	if c.Hosts == nil {
		c.Hosts = make(map[string]Host)
	}
	c.Hosts[h.Name] = h
}

// RemoveHost deletes a host entry. Reports whether it existed.
func (c *Config) RemoveHost(name string) bool {
	if _, ok := c.Hosts[name]; !ok {
		return false
	}
	delete(c.Hosts, name)
	return true
}

// AddHostGroup inserts or replaces a host-group entry.
func (c *Config) AddHostGroup(g HostGroup) {
	if c.HostGroups == nil {
		c.HostGroups = make(map[string]HostGroup)
	}
	c.HostGroups[g.Name] = g
}

// RemoveHostGroup deletes a host-group entry. Reports whether it existed.
func (c *Config) RemoveHostGroup(name string) bool {
	if _, ok := c.HostGroups[name]; !ok {
		return false
	}
	delete(c.HostGroups, name)
	return true
}

// AddCommand inserts or replaces a command entry.
func (c *Config) AddCommand(cmd Command) {
	if c.Commands == nil {
		c.Commands = make(map[string]Command)
	}
	c.Commands[cmd.Name] = cmd
}

// RemoveCommand deletes a command entry. Reports whether it existed.
func (c *Config) RemoveCommand(name string) bool {
	if _, ok := c.Commands[name]; !ok {
		return false
	}
	delete(c.Commands, name)
	return true
}
