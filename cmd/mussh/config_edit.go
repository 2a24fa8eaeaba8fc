package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agent462/mussh/internal/config"
)

// newHostsCmd, newHostlistCmd, and newCmdCmd implement the ancillary
// add/remove/list editing flows spec.md §4.1 calls out as present in the
// original Rust CLI's cmd::hosts/cmd::hostlist/cmd::command subcommands
// but not required at the core: every write goes through
// config.SaveAtomic (rename + ".bak" sibling), never a direct overwrite.

func newHostsCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "hosts", Short: "Manage configured hosts"}

	var hostname, username, pem string
	var port uint16
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or replace a host entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return editConfig(global, func(cfg *config.Config) error {
				cfg.AddHost(config.Host{
					Name: args[0], Hostname: hostname, Username: username, Port: port, Pem: pem,
				})
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&hostname, "hostname", "", "DNS name, IP, or \"localhost\" (required)")
	addCmd.Flags().StringVar(&username, "username", "", "SSH username (required for non-localhost)")
	addCmd.Flags().Uint16Var(&port, "port", 22, "SSH port")
	addCmd.Flags().StringVar(&pem, "pem", "", "path to a private key file (optional; else SSH-agent)")

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a host entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return editConfig(global, func(cfg *config.Config) error {
				if !cfg.RemoveHost(args[0]) {
					return fmt.Errorf("host %q not found", args[0])
				}
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured hosts",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(global)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cfg.Hosts))
			for n := range cfg.Hosts {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				h := cfg.Hosts[n]
				fmt.Fprintf(os.Stdout, "%s\t%s@%s:%d\n", h.Name, h.Username, h.Hostname, h.Port)
			}
			return nil
		},
	}

	cmd.AddCommand(addCmd, removeCmd, listCmd)
	return cmd
}

func newHostlistCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "hostlist", Short: "Manage configured host groups"}

	var membersRaw string
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or replace a host-group entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return editConfig(global, func(cfg *config.Config) error {
				cfg.AddHostGroup(config.HostGroup{Name: args[0], Members: splitTokens(membersRaw)})
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&membersRaw, "members", "", "member host names, comma- or space-separated")

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a host-group entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return editConfig(global, func(cfg *config.Config) error {
				if !cfg.RemoveHostGroup(args[0]) {
					return fmt.Errorf("hostlist %q not found", args[0])
				}
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured host groups",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(global)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cfg.HostGroups))
			for n := range cfg.HostGroups {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				g := cfg.HostGroups[n]
				fmt.Fprintf(os.Stdout, "%s\t%v\n", g.Name, g.Members)
			}
			return nil
		},
	}

	cmd.AddCommand(addCmd, removeCmd, listCmd)
	return cmd
}

func newCmdCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "cmd", Short: "Manage configured commands"}

	var commandStr string
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or replace a command entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return editConfig(global, func(cfg *config.Config) error {
				cfg.AddCommand(config.Command{Name: args[0], Command: commandStr})
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&commandStr, "command", "", "the shell command string (required)")

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a command entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return editConfig(global, func(cfg *config.Config) error {
				if !cfg.RemoveCommand(args[0]) {
					return fmt.Errorf("cmd %q not found", args[0])
				}
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured commands",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(global)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cfg.Commands))
			for n := range cfg.Commands {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(os.Stdout, "%s\t%s\n", n, cfg.Commands[n].Command)
			}
			return nil
		},
	}

	cmd.AddCommand(addCmd, removeCmd, listCmd)
	return cmd
}

// editConfig loads the config, applies mutate, and writes it back through
// config.SaveAtomic.
func editConfig(global *globalFlags, mutate func(*config.Config) error) error {
	cfg, path, err := loadConfig(global)
	if err != nil {
		return err
	}
	if err := mutate(cfg); err != nil {
		return runtimeError(err)
	}
	if err := config.SaveAtomic(path, cfg); err != nil {
		return runtimeError(err)
	}
	return nil
}
