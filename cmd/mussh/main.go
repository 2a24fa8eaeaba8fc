// Command mussh fans out named shell commands across named SSH hosts and
// host-groups, per the config loaded from a mussh.toml file. See the root
// command's help text and internal/config for the schema.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agent462/mussh/internal/config"
	"github.com/agent462/mussh/internal/termlog"
)

// globalFlags holds the root-level flags shared by every subcommand, bound
// once in newRootCmd and read by each subcommand's RunE.
type globalFlags struct {
	configPath string
	verbosity  int
	dryRun     bool
	output     bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run builds the command tree and executes it, returning the process exit
// code: 0 all outcomes ok, 1 any failure (config/selection/execution), 2
// usage error (cobra's own flag-parse failure path).
func run(args []string) int {
	root, _ := newRootCmd()
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		if code, ok := exitCodeOf(err); ok {
			return code
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return 0
}

// runtimeError marks err as a non-usage failure (config/selection/execution),
// which run() reports as exit code 1 instead of cobra's default 2.
type runtimeErr struct{ err error }

func (e *runtimeErr) Error() string { return e.err.Error() }
func (e *runtimeErr) Unwrap() error { return e.err }

func runtimeError(err error) error { return &runtimeErr{err: err} }

func exitCodeOf(err error) (int, bool) {
	var re *runtimeErr
	if asRuntimeErr(err, &re) {
		return 1, true
	}
	return 0, false
}

func asRuntimeErr(err error, target **runtimeErr) bool {
	for err != nil {
		if re, ok := err.(*runtimeErr); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func newRootCmd() (*cobra.Command, *globalFlags) {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "mussh",
		Short:         "Fan out named commands across named SSH hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to mussh.toml (overrides discovery order)")
	root.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	root.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "preview the execution plan without running anything")
	root.PersistentFlags().BoolVar(&flags.output, "output", false, "dump the effective config instead of running")

	root.AddCommand(
		newRunCmd(flags),
		newHostsCmd(flags),
		newHostlistCmd(flags),
		newCmdCmd(flags),
	)

	return root, flags
}

// loadConfig resolves and loads the config file per flags, tagging any
// failure as a runtimeError (exit 1, per spec.md §7 ConfigMissing/
// ConfigInvalid) rather than a usage error.
func loadConfig(flags *globalFlags) (*config.Config, string, error) {
	path := config.DiscoverPath(flags.configPath)
	if path == "" {
		return nil, "", runtimeError(fmt.Errorf("no mussh.toml found (tried --config, ./.mussh/, ~/.mussh/, system path)"))
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", runtimeError(err)
	}
	return cfg, path, nil
}

func newLogger(flags *globalFlags) *termlog.Logger {
	return termlog.New(flags.verbosity)
}
