package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agent462/mussh/internal/metrics"
	"github.com/agent462/mussh/internal/multiplex"
	"github.com/agent462/mussh/internal/muserr"
	"github.com/agent462/mussh/internal/report"
	"github.com/agent462/mussh/internal/selector"
	"github.com/agent462/mussh/internal/transport"
)

// runFlags holds the "run" subcommand's own flags, on top of the global
// ones in globalFlags.
type runFlags struct {
	hosts         string
	commands      string
	syncMode      bool
	syncHosts     string
	syncCommands  string
	concurrency   int
	metricsDBPath string
}

func newRunCmd(global *globalFlags) *cobra.Command {
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one or more commands across selected hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), global, rf)
		},
	}

	cmd.Flags().StringVarP(&rf.hosts, "hosts", "h", "", "host/group tokens, comma- or space-separated; !name excludes")
	cmd.Flags().StringVarP(&rf.commands, "commands", "c", "", "command-name tokens, comma- or space-separated")
	cmd.Flags().BoolVar(&rf.syncMode, "sync", false, "serialize Phase-2 dispatch, one host at a time")
	cmd.Flags().StringVarP(&rf.syncHosts, "sync-hosts", "s", "", "host tokens forming the Phase-1 sync cohort")
	cmd.Flags().StringVarP(&rf.syncCommands, "sync-commands", "y", "", "command tokens run by the sync cohort")
	cmd.Flags().IntVar(&rf.concurrency, "concurrency", 0, "max hosts running concurrently (0 = unbounded, per spec.md §5)")
	cmd.Flags().StringVar(&rf.metricsDBPath, "metrics-db", "", "optional SQLite path to persist per-outcome metrics")

	return cmd
}

// splitTokens splits a comma- or space-separated token list, per spec.md §6,
// dropping empty tokens produced by repeated separators.
func splitTokens(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func runRun(ctx context.Context, global *globalFlags, rf *runFlags) error {
	cfg, cfgPath, err := loadConfig(global)
	if err != nil {
		return err
	}
	logger := newLogger(global)

	if global.output {
		return dumpConfig(cfg)
	}

	if (rf.syncHosts == "") != (rf.syncCommands == "") {
		return runtimeError(fmt.Errorf("--sync-hosts and --sync-commands must be given together"))
	}

	plan, warnings, err := selector.Resolve(cfg, selector.Request{
		HostTokens:    splitTokens(rf.hosts),
		CommandTokens: splitTokens(rf.commands),
	})
	if err != nil {
		return runtimeError(err)
	}

	syncCohort := map[string]bool{}
	if rf.syncHosts != "" {
		syncPlan, syncWarnings, err := selector.Resolve(cfg, selector.Request{
			HostTokens:    splitTokens(rf.syncHosts),
			CommandTokens: splitTokens(rf.syncCommands),
		})
		if err != nil {
			return runtimeError(err)
		}
		warnings = append(warnings, syncWarnings...)
		syncCohort = selector.SyncCohort(syncPlan)
		plan = mergePlans(plan, syncPlan)
	}

	for _, w := range warnings {
		logger.Warn(w.Error())
	}

	if emptyPlan(plan) {
		return runtimeError(fmt.Errorf("%w", muserr.SelectionEmpty))
	}

	if global.dryRun {
		return report.WritePlan(os.Stdout, cfg, plan, syncCohort)
	}

	logDir := filepath.Dir(cfgPath)

	var metricsSink *metrics.Sink
	if rf.metricsDBPath != "" {
		metricsSink, err = metrics.Open(rf.metricsDBPath)
		if err != nil {
			logger.Warn("metrics sink unavailable", "error", err)
		} else {
			defer metricsSink.Close()
		}
	}

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	selectHost := transport.Select(transport.SSHOptions{})

	outcomes, err := multiplex.Run(runCtx, cfg, plan, syncCohort, multiplex.Options{
		Concurrency: rf.concurrency,
		SyncMode:    rf.syncMode,
		LogDir:      logDir,
		SelectHost:  selectHost,
		OnOutcome: func(o multiplex.Outcome) {
			if metricsSink == nil {
				return
			}
			recCtx, recCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer recCancel()
			if err := metricsSink.Record(recCtx, o); err != nil {
				logger.Warn("metrics write failed", "error", err)
			}
		},
	})
	if err != nil {
		return runtimeError(err)
	}

	if err := report.Write(os.Stdout, outcomes); err != nil {
		logger.Warn("report write failed", "error", err)
	}

	if code := report.ExitCode(report.Tally(outcomes)); code != 0 {
		return runtimeError(fmt.Errorf("%d outcome(s) did not succeed", report.Tally(outcomes).Failed+report.Tally(outcomes).Cancelled))
	}
	return nil
}

// mergePlans unions a primary Plan with the sync selection's Plan: a host
// named in both receives the union of their commands (sync commands run in
// the sync phase, primary commands run in whichever phase the host lands
// in), per spec.md §4.2 "guaranteed disjoint-by-action."
func mergePlans(primary, sync *selector.Plan) *selector.Plan {
	merged := &selector.Plan{
		Commands: make(map[string][]selector.PlannedCommand, len(primary.Commands)+len(sync.Commands)),
	}
	seen := make(map[string]bool)
	for _, h := range sync.Hosts {
		if !seen[h] {
			seen[h] = true
			merged.Hosts = append(merged.Hosts, h)
		}
	}
	for _, h := range primary.Hosts {
		if !seen[h] {
			seen[h] = true
			merged.Hosts = append(merged.Hosts, h)
		}
	}
	for _, h := range merged.Hosts {
		merged.Commands[h] = append(append([]selector.PlannedCommand{}, sync.Commands[h]...), primary.Commands[h]...)
	}
	return merged
}

func emptyPlan(plan *selector.Plan) bool {
	for _, h := range plan.Hosts {
		if len(plan.Commands[h]) > 0 {
			return false
		}
	}
	return true
}
