package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agent462/mussh/internal/config"
	"github.com/agent462/mussh/internal/multiplex"
	"github.com/agent462/mussh/internal/selector"
)

func TestTally(t *testing.T) {
	outcomes := []multiplex.Outcome{
		{Status: multiplex.StatusOK},
		{Status: multiplex.StatusOK},
		{Status: multiplex.StatusFailed},
		{Status: multiplex.StatusCancelled},
	}
	counts := Tally(outcomes)
	if counts.OK != 2 || counts.Failed != 1 || counts.Cancelled != 1 {
		t.Fatalf("counts = %+v, want {OK:2 Failed:1 Cancelled:1}", counts)
	}
	if counts.Total() != 4 {
		t.Errorf("Total() = %d, want 4", counts.Total())
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		c    Counts
		want int
	}{
		{"all ok", Counts{OK: 3}, 0},
		{"one failed", Counts{OK: 2, Failed: 1}, 1},
		{"one cancelled", Counts{OK: 2, Cancelled: 1}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.c); got != tc.want {
				t.Errorf("ExitCode(%+v) = %d, want %d", tc.c, got, tc.want)
			}
		})
	}
}

func TestWriteIncludesHostCmdAndErrorText(t *testing.T) {
	outcomes := []multiplex.Outcome{
		{Host: "web1", Cmd: "uptime", Status: multiplex.StatusOK, Duration: 250 * time.Millisecond},
		{Host: "web2", Cmd: "uptime", Status: multiplex.StatusFailed, Err: errors.New("exit status 1")},
	}

	var buf bytes.Buffer
	if err := Write(&buf, outcomes); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"web1", "web2", "uptime", "ok", "failed", "exit status 1", "1 ok, 1 failed, 0 cancelled"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// S1-style: the preview marks an aliased command and distinguishes sync-cohort hosts.
func TestWritePlanMarksAliasedCommandsAndSyncCohort(t *testing.T) {
	cfg := &config.Config{
		Commands: map[string]config.Command{
			"python": {Name: "python", Command: "python --version"},
			"py3":    {Name: "py3", Command: "python3 --version"},
		},
	}
	plan := &selector.Plan{
		Hosts: []string{"m1", "pre"},
		Commands: map[string][]selector.PlannedCommand{
			"m1":  {{Name: "python", Effective: "python3 --version"}},
			"pre": {{Name: "python", Effective: "python --version"}},
		},
	}

	var buf bytes.Buffer
	if err := WritePlan(&buf, cfg, plan, map[string]bool{"pre": true}); err != nil {
		t.Fatalf("WritePlan: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "(aliased)") {
		t.Errorf("expected an (aliased) marker in:\n%s", out)
	}
	if !strings.Contains(out, "phase1 (sync)") {
		t.Errorf("expected pre to be marked phase1 (sync) in:\n%s", out)
	}
	if !strings.Contains(out, "phase2") {
		t.Errorf("expected m1 to be marked phase2 in:\n%s", out)
	}
}
