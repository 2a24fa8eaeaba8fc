// Package report renders multiplex.Outcome values as human-readable text
// and derives the process-level exit code from their aggregate status.
//
// The teacher's internal/ui/exec.Formatter aligns per-host result columns
// with colorized labels for a TUI; this is a batch CLI with no lipgloss
// table widget, so aligned columns come from the stdlib's text/tabwriter
// instead, the idiomatic non-TUI analogue for exactly this shape of
// "one row per unit of work, tab-separated, column-aligned" output.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/agent462/mussh/internal/config"
	"github.com/agent462/mussh/internal/multiplex"
	"github.com/agent462/mussh/internal/selector"
)

// Counts tallies outcomes by status.
type Counts struct {
	OK        int
	Failed    int
	Cancelled int
}

// Total returns the number of outcomes tallied.
func (c Counts) Total() int { return c.OK + c.Failed + c.Cancelled }

// Tally aggregates outcomes into Counts.
func Tally(outcomes []multiplex.Outcome) Counts {
	var c Counts
	for _, o := range outcomes {
		switch o.Status {
		case multiplex.StatusOK:
			c.OK++
		case multiplex.StatusFailed:
			c.Failed++
		case multiplex.StatusCancelled:
			c.Cancelled++
		}
	}
	return c
}

// Write renders one tab-aligned row per outcome, in the order given,
// followed by a blank line and an aggregate summary.
func Write(w io.Writer, outcomes []multiplex.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "HOST\tCMD\tDURATION\tSTATUS")
	for _, o := range outcomes {
		statusCol := statusLabel(o.Status)
		if o.Err != nil {
			statusCol = fmt.Sprintf("%s (%s)", statusCol, o.Err.Error())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Host, o.Cmd, formatDuration(o.Duration), statusCol)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts := Tally(outcomes)
	_, err := fmt.Fprintf(w, "\n%d ok, %d failed, %d cancelled\n", counts.OK, counts.Failed, counts.Cancelled)
	return err
}

// WritePlan renders a dry-run preview (spec.md §4.5): one line per planned
// (host, command), marking which commands were aliased (effective string
// differs from the nominal command's own string) and which hosts belong to
// the sync cohort. It produces no outcomes and no network/spawn side
// effects (P6).
func WritePlan(w io.Writer, cfg *config.Config, plan *selector.Plan, syncCohort map[string]bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "HOST\tPHASE\tCMD\tEFFECTIVE")
	for _, host := range plan.Hosts {
		phase := "phase2"
		if syncCohort[host] {
			phase = "phase1 (sync)"
		}
		for _, pc := range plan.Commands[host] {
			effective := pc.Effective
			if nominal, ok := cfg.Commands[pc.Name]; ok && nominal.Command != pc.Effective {
				effective += " (aliased)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", host, phase, pc.Name, effective)
		}
	}
	return tw.Flush()
}

func statusLabel(s multiplex.OutcomeStatus) string {
	switch s {
	case multiplex.StatusOK:
		return "ok"
	case multiplex.StatusFailed:
		return "failed"
	case multiplex.StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

// ExitCode derives the process exit code from the aggregate counts:
// 0 if every outcome succeeded, 1 if any command failed or was cancelled.
// Usage errors (exit code 2) and configuration/selection errors (exit
// code 1) are signaled separately by their callers, before any outcomes
// exist to tally.
func ExitCode(counts Counts) int {
	if counts.Failed > 0 || counts.Cancelled > 0 {
		return 1
	}
	return 0
}
