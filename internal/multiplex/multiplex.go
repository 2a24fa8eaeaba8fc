// Package multiplex runs a Plan's commands across hosts with bounded
// concurrency, in two phases: the sync cohort's commands first (every
// cohort host finishing its whole command list before any remaining host
// starts), then every remaining host's commands. Phase 2 itself runs hosts in parallel unless
// Options.SyncMode serializes it to one host at a time, in plan order —
// orthogonal to the Phase-1 barrier, which is always enforced.
//
// The concurrency bound and per-host goroutine shape follow the teacher's
// internal/executor.Executor (a channel semaphore plus one goroutine per
// host); golang.org/x/sync/errgroup replaces the WaitGroup so the shared
// context still carries an external cancellation (e.g. SIGINT) into every
// in-flight worker. A worker's own panic never returns as an error from its
// g.Go func — doing so would cancel that context and wrongly mark every
// sibling host's still-pending commands Cancelled — so it is recorded as
// failed(internal) outcomes for that host alone (recordHostPanic) instead.
package multiplex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agent462/mussh/internal/config"
	"github.com/agent462/mussh/internal/hostlog"
	"github.com/agent462/mussh/internal/muserr"
	"github.com/agent462/mussh/internal/selector"
	"github.com/agent462/mussh/internal/transport"
)

// OutcomeStatus classifies how a single (host, command) run ended.
type OutcomeStatus int

const (
	StatusOK OutcomeStatus = iota
	StatusFailed
	StatusCancelled
)

// Outcome records one planned command's execution result.
type Outcome struct {
	Host     string
	Cmd      string
	Command  string // the effective, post-alias command string run
	Status   OutcomeStatus
	ExitCode int
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Options configures a Run.
type Options struct {
	Concurrency int // max hosts running concurrently; <=0 means unbounded
	// SyncMode serializes Phase 2 dispatch: hosts run one at a time, in
	// plan order, each awaited to completion before the next starts. It
	// is orthogonal to the sync cohort (the "sync" map passed to Run):
	// Phase 1 is always run to a full barrier regardless of SyncMode.
	SyncMode   bool
	LogDir     string
	SelectHost func(config.Host) transport.Executor
	OnOutcome  func(Outcome) // invoked as each Outcome completes, for live reporting
}

// Run executes plan's commands against cfg's hosts, honoring the two-phase
// sync barrier for the hosts named in sync. It returns every Outcome in
// completion order (not call order; callers needing host order should sort).
func Run(ctx context.Context, cfg *config.Config, plan *selector.Plan, sync map[string]bool, opts Options) ([]Outcome, error) {
	if opts.SelectHost == nil {
		return nil, fmt.Errorf("multiplex: Options.SelectHost is required")
	}

	var (
		mu       sync.Mutex
		outcomes []Outcome
	)
	record := func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
		if opts.OnOutcome != nil {
			opts.OnOutcome(o)
		}
	}

	sem := newSemaphore(opts.Concurrency)

	syncHosts, remHosts := partitionHosts(plan.Hosts, sync)

	// Phase 1 is always a full barrier, run concurrently regardless of
	// SyncMode: SyncMode only governs Phase 2 dispatch (spec.md §9 "Open
	// question").
	if len(syncHosts) > 0 {
		if err := runCohort(ctx, cfg, plan, syncHosts, sem, opts, record); err != nil {
			return outcomes, err
		}
	}

	if opts.SyncMode {
		if err := runCohortSerial(ctx, cfg, plan, remHosts, opts, record); err != nil {
			return outcomes, err
		}
	} else if err := runCohort(ctx, cfg, plan, remHosts, sem, opts, record); err != nil {
		return outcomes, err
	}

	return outcomes, nil
}

// partitionHosts splits plan.Hosts into the sync cohort (preserving plan
// order) and everyone else.
func partitionHosts(hosts []string, sync map[string]bool) (syncHosts, remHosts []string) {
	for _, h := range hosts {
		if sync[h] {
			syncHosts = append(syncHosts, h)
		} else {
			remHosts = append(remHosts, h)
		}
	}
	return
}

// runCohort runs every host in hosts concurrently (bounded by sem), running
// each host's planned commands sequentially. All hosts reach the end of
// this call — the barrier — before the caller proceeds to the next cohort.
func runCohort(ctx context.Context, cfg *config.Config, plan *selector.Plan, hosts []string, sem chan struct{}, opts Options, record func(Outcome)) error {
	if len(hosts) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, hostName := range hosts {
		hostName := hostName
		g.Go(func() error {
			progress := 0
			defer func() {
				if r := recover(); r != nil {
					recordHostPanic(plan, hostName, progress, r, record)
				}
			}()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return nil
			}

			runHost(gctx, cfg, plan, hostName, opts, record, &progress)
			return nil
		})
	}

	return g.Wait()
}

// runCohortSerial runs hosts one at a time, in plan order, each host's full
// command list awaited to completion before the next host starts. Used for
// Phase 2 when SyncMode is set. A worker panic is recovered per host and
// turned into failed outcomes for that host's own remaining commands
// (recordHostPanic), not a returned error, so it never aborts the hosts
// still left in the serial loop.
func runCohortSerial(ctx context.Context, cfg *config.Config, plan *selector.Plan, hosts []string, opts Options, record func(Outcome)) error {
	for _, hostName := range hosts {
		func() {
			progress := 0
			defer func() {
				if r := recover(); r != nil {
					recordHostPanic(plan, hostName, progress, r, record)
				}
			}()
			runHost(ctx, cfg, plan, hostName, opts, record, &progress)
		}()
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// recordHostPanic converts a recovered worker panic into a failed(internal)
// Outcome for every one of hostName's planned commands that hadn't yet had
// an Outcome recorded when the panic hit (progress counts how many of
// plan.Commands[hostName], in order, runHost got through). Per spec.md
// §4.5, a worker panic must never escape as an error — only per-outcome
// failures — so callers record through this instead of propagating err.
func recordHostPanic(plan *selector.Plan, hostName string, progress int, r any, record func(Outcome)) {
	planned := plan.Commands[hostName]
	if progress >= len(planned) {
		return
	}
	now := time.Now()
	err := fmt.Errorf("%w: worker panic for host %s: %v", muserr.Internal, hostName, r)
	for _, pc := range planned[progress:] {
		record(Outcome{
			Host: hostName, Cmd: pc.Name, Command: pc.Effective,
			Status: StatusFailed, ExitCode: -1,
			Started: now, Err: err,
		})
	}
}

// runHost runs hostName's planned commands in order, stopping early (but
// still recording a Cancelled Outcome for every command that did not get to
// start) if the context is cancelled mid-sequence. progress is incremented
// after each command's Outcome is recorded, so a caller that recovers a
// panic out of this call knows which of plan.Commands[hostName] still need
// a (failed) Outcome of their own.
func runHost(ctx context.Context, cfg *config.Config, plan *selector.Plan, hostName string, opts Options, record func(Outcome), progress *int) {
	host := cfg.Hosts[hostName]
	planned := plan.Commands[hostName]

	var sink *hostlog.Sink
	if opts.LogDir != "" {
		s, err := hostlog.Open(opts.LogDir, hostName, nil)
		if err == nil {
			sink = s
			defer sink.Close()
		}
	}

	exec := opts.SelectHost(host)

	aborted := false
	for _, pc := range planned {
		started := time.Now()

		if aborted || ctx.Err() != nil {
			record(Outcome{
				Host: hostName, Cmd: pc.Name, Command: pc.Effective,
				Status: StatusCancelled, ExitCode: -1,
				Started: started, Err: fmt.Errorf("%w", muserr.Cancelled),
			})
			aborted = true
			*progress++
			continue
		}

		result := exec.Execute(ctx, host, pc.Effective, sink)
		duration := time.Since(started)

		status := StatusOK
		switch {
		case errors.Is(result.Err, muserr.Cancelled):
			status = StatusCancelled
			aborted = true
		case result.Err != nil, result.ExitCode != 0:
			status = StatusFailed
		}

		record(Outcome{
			Host: hostName, Cmd: pc.Name, Command: pc.Effective,
			Status: status, ExitCode: result.ExitCode,
			Started: started, Duration: duration, Err: result.Err,
		})
		*progress++
	}
}

// newSemaphore returns a channel-based semaphore with capacity n, or an
// effectively unbounded one (large buffer) if n <= 0.
func newSemaphore(n int) chan struct{} {
	if n <= 0 {
		n = 1 << 16
	}
	return make(chan struct{}, n)
}
