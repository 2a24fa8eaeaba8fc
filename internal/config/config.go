// Package config models the mussh configuration: named hosts, named
// host-groups, and named commands, plus per-host command aliases.
//
// Config is a passive record loaded once at startup and consumed read-only
// for the rest of the process lifetime (see internal/selector for the
// resolution that turns it, plus CLI tokens, into an execution plan).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/agent462/mussh/internal/muserr"
)

// Alias is a per-host redirection from one command name to another.
// It applies only on the declaring host and only for AliasFor (A3).
type Alias struct {
	// Command is the name of the command whose string is substituted in.
	Command string
	// AliasFor is the command name being overridden on this host.
	AliasFor string
}

// Host is the identity of a single SSH target, or the literal "localhost".
type Host struct {
	Name     string // the config key, e.g. hosts.<Name>
	Hostname string
	Username string
	Port     uint16
	Pem      string
	Aliases  []Alias // ordered; first match in declaration order wins (A3)
}

// HostGroup is a named, ordered list of host names. Duplicates are
// tolerated in the raw list and collapsed at resolve time.
type HostGroup struct {
	Name    string
	Members []string
}

// Command is a named shell command line (a string, not a token list).
type Command struct {
	Name    string
	Command string
}

// Config is the in-memory, validated representation of a mussh.toml file.
type Config struct {
	HostGroups map[string]HostGroup
	Hosts      map[string]Host
	Commands   map[string]Command
}

// wire schema — mirrors the original mussh TOML layout
// (hostlist.<GROUP>.hostnames, hosts.<HOST>.{hostname,username,port,pem,alias},
// cmd.<CMD>.command) bit-exactly.
type wireConfig struct {
	Hostlist map[string]wireHostlist `toml:"hostlist"`
	Hosts    map[string]wireHost     `toml:"hosts"`
	Cmd      map[string]wireCommand  `toml:"cmd"`
}

type wireHostlist struct {
	Hostnames []string `toml:"hostnames"`
}

type wireHost struct {
	Hostname string      `toml:"hostname"`
	Username string      `toml:"username"`
	Port     uint16      `toml:"port"`
	Pem      string      `toml:"pem"`
	Alias    []wireAlias `toml:"alias"`
}

type wireAlias struct {
	Command  string `toml:"command"`
	Aliasfor string `toml:"aliasfor"`
}

type wireCommand struct {
	Command string `toml:"command"`
}

const defaultPort = 22

// Load reads and parses a mussh.toml file from path, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", muserr.ConfigMissing, path, err)
	}

	var wire wireConfig
	if _, err := toml.Decode(string(data), &wire); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", muserr.ConfigInvalid, path, err)
	}

	cfg := fromWire(&wire)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", muserr.ConfigInvalid, err)
	}
	return cfg, nil
}

func fromWire(w *wireConfig) *Config {
	cfg := &Config{
		HostGroups: make(map[string]HostGroup, len(w.Hostlist)),
		Hosts:      make(map[string]Host, len(w.Hosts)),
		Commands:   make(map[string]Command, len(w.Cmd)),
	}

	for name, hl := range w.Hostlist {
		cfg.HostGroups[name] = HostGroup{Name: name, Members: hl.Hostnames}
	}

	for name, h := range w.Hosts {
		port := h.Port
		if port == 0 {
			port = defaultPort
		}
		aliases := make([]Alias, 0, len(h.Alias))
		for _, a := range h.Alias {
			aliases = append(aliases, Alias{Command: a.Command, AliasFor: a.Aliasfor})
		}
		cfg.Hosts[name] = Host{
			Name:     name,
			Hostname: h.Hostname,
			Username: h.Username,
			Port:     port,
			Pem:      h.Pem,
			Aliases:  aliases,
		}
	}

	for name, c := range w.Cmd {
		cfg.Commands[name] = Command{Name: name, Command: c.Command}
	}

	return cfg
}

func toWire(cfg *Config) *wireConfig {
	w := &wireConfig{
		Hostlist: make(map[string]wireHostlist, len(cfg.HostGroups)),
		Hosts:    make(map[string]wireHost, len(cfg.Hosts)),
		Cmd:      make(map[string]wireCommand, len(cfg.Commands)),
	}
	for name, g := range cfg.HostGroups {
		w.Hostlist[name] = wireHostlist{Hostnames: g.Members}
	}
	for name, h := range cfg.Hosts {
		aliases := make([]wireAlias, 0, len(h.Aliases))
		for _, a := range h.Aliases {
			aliases = append(aliases, wireAlias{Command: a.Command, Aliasfor: a.AliasFor})
		}
		w.Hosts[name] = wireHost{
			Hostname: h.Hostname,
			Username: h.Username,
			Port:     h.Port,
			Pem:      h.Pem,
			Alias:    aliases,
		}
	}
	for name, c := range cfg.Commands {
		w.Cmd[name] = wireCommand{Command: c.Command}
	}
	return w
}

// Validate checks the config for logical errors not enforced by the TOML
// schema itself. Referential integrity (unknown host/group/command names) is intentionally
// NOT checked here: unknown tokens are tolerated and warned about at
// selection time rather than rejected at load time.
func (c *Config) Validate() error {
	for name, host := range c.Hosts {
		if host.Hostname == "" {
			return fmt.Errorf("host %q: hostname is required", name)
		}
		if host.Hostname != "localhost" && host.Username == "" {
			return fmt.Errorf("host %q: username is required for non-localhost hosts", name)
		}
	}
	for name, group := range c.HostGroups {
		if len(group.Members) == 0 {
			return fmt.Errorf("hostlist %q: has no hostnames", name)
		}
	}
	for name, cmd := range c.Commands {
		if cmd.Command == "" {
			return fmt.Errorf("cmd %q: command string is required", name)
		}
	}
	return nil
}
