package multiplex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agent462/mussh/internal/config"
	"github.com/agent462/mussh/internal/hostlog"
	"github.com/agent462/mussh/internal/selector"
	"github.com/agent462/mussh/internal/transport"
)

// fakeExecutor records every call it receives and optionally blocks on a
// per-host gate, so tests can assert ordering across the sync barrier.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	gate  map[string]chan struct{} // closed to release a blocked host
}

func (f *fakeExecutor) Execute(ctx context.Context, host config.Host, cmdString string, sink *hostlog.Sink) transport.Result {
	f.mu.Lock()
	f.calls = append(f.calls, host.Name+":"+cmdString)
	gate := f.gate[host.Name]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return transport.Result{ExitCode: -1, Err: ctx.Err()}
		}
	}
	return transport.Result{ExitCode: 0}
}

func testPlan() (*config.Config, *selector.Plan) {
	cfg := &config.Config{
		Hosts: map[string]config.Host{
			"a": {Name: "a", Hostname: "a.example.com"},
			"b": {Name: "b", Hostname: "b.example.com"},
		},
	}
	plan := &selector.Plan{
		Hosts: []string{"a", "b"},
		Commands: map[string][]selector.PlannedCommand{
			"a": {{Name: "uptime", Effective: "uptime"}},
			"b": {{Name: "uptime", Effective: "uptime"}},
		},
	}
	return cfg, plan
}

func TestRunRecordsOneOutcomePerPlannedCommand(t *testing.T) {
	cfg, plan := testPlan()
	fe := &fakeExecutor{}
	opts := Options{
		SelectHost: func(config.Host) transport.Executor { return fe },
	}

	outcomes, err := Run(context.Background(), cfg, plan, map[string]bool{}, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Status != StatusOK {
			t.Errorf("host %s status = %v, want StatusOK", o.Host, o.Status)
		}
	}
	if len(fe.calls) != 2 {
		t.Errorf("expected 2 executor calls, got %v", fe.calls)
	}
}

// P1/L1-style: the sync cohort fully completes before the remainder runs.
func TestRunSyncCohortPrecedesRemainder(t *testing.T) {
	cfg, plan := testPlan()
	gateA := make(chan struct{})
	fe := &fakeExecutor{gate: map[string]chan struct{}{"a": gateA}}

	opts := Options{
		SelectHost: func(config.Host) transport.Executor { return fe },
	}

	done := make(chan []Outcome, 1)
	go func() {
		outcomes, _ := Run(context.Background(), cfg, plan, map[string]bool{"a": true}, opts)
		done <- outcomes
	}()

	time.Sleep(20 * time.Millisecond)
	fe.mu.Lock()
	calls := append([]string(nil), fe.calls...)
	fe.mu.Unlock()
	if len(calls) != 1 || calls[0] != "a:uptime" {
		t.Fatalf("before releasing the sync cohort, calls = %v, want only a:uptime", calls)
	}

	close(gateA)
	outcomes := <-done
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	cfg := &config.Config{Hosts: map[string]config.Host{}}
	plan := &selector.Plan{Commands: map[string][]selector.PlannedCommand{}}
	for i := 0; i < 5; i++ {
		name := string(rune('a' + i))
		cfg.Hosts[name] = config.Host{Name: name, Hostname: name}
		plan.Hosts = append(plan.Hosts, name)
		plan.Commands[name] = []selector.PlannedCommand{{Name: "x", Effective: "x"}}
	}

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	block := make(chan struct{})
	fe := &blockingCountExecutor{
		onStart: func() {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
		},
		onEnd: func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		},
		release: block,
	}

	opts := Options{
		Concurrency: 2,
		SelectHost:  func(config.Host) transport.Executor { return fe },
	}

	done := make(chan struct{})
	go func() {
		Run(context.Background(), cfg, plan, map[string]bool{}, opts)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	close(block)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight > 2 {
		t.Errorf("max concurrent executions = %d, want <= 2", maxInFlight)
	}
}

type blockingCountExecutor struct {
	onStart, onEnd func()
	release        chan struct{}
}

func (b *blockingCountExecutor) Execute(ctx context.Context, host config.Host, cmdString string, sink *hostlog.Sink) transport.Result {
	b.onStart()
	defer b.onEnd()
	<-b.release
	return transport.Result{ExitCode: 0}
}

func TestRunCancellationStopsRemainingCommands(t *testing.T) {
	cfg := &config.Config{
		Hosts: map[string]config.Host{"a": {Name: "a", Hostname: "a"}},
	}
	plan := &selector.Plan{
		Hosts: []string{"a"},
		Commands: map[string][]selector.PlannedCommand{
			"a": {
				{Name: "one", Effective: "one"},
				{Name: "two", Effective: "two"},
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	fe := &cancelOnFirstCallExecutor{cancel: cancel}
	opts := Options{SelectHost: func(config.Host) transport.Executor { return fe }}

	outcomes, err := Run(ctx, cfg, plan, map[string]bool{}, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}

	byCmd := map[string]Outcome{}
	for _, o := range outcomes {
		byCmd[o.Cmd] = o
	}
	if byCmd["two"].Status != StatusCancelled {
		t.Errorf("second command status = %v, want StatusCancelled", byCmd["two"].Status)
	}
}

// S4: with SyncMode, Phase-2 hosts run one at a time, never overlapping.
func TestRunSyncModeSerializesPhase2(t *testing.T) {
	cfg, plan := testPlan()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	fe := &blockingCountExecutor{
		onStart: func() {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
		},
		onEnd: func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		},
		release: closedChan(),
	}

	opts := Options{
		SyncMode:   true,
		SelectHost: func(config.Host) transport.Executor { return fe },
	}

	outcomes, err := Run(context.Background(), cfg, plan, map[string]bool{}, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight > 1 {
		t.Errorf("max concurrent executions under SyncMode = %d, want <= 1", maxInFlight)
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// panicOnHostExecutor panics on every call for the named host and behaves
// normally for everyone else.
type panicOnHostExecutor struct {
	panicHost string
}

func (p *panicOnHostExecutor) Execute(ctx context.Context, host config.Host, cmdString string, sink *hostlog.Sink) transport.Result {
	if host.Name == p.panicHost {
		panic("boom")
	}
	return transport.Result{ExitCode: 0}
}

// A worker panic must be converted into failed(internal) outcomes for its
// own host's remaining commands, never a returned error (spec.md §4.5,
// §7): Run must still succeed and still report every other host's
// outcomes untouched.
func TestRunHostPanicDoesNotAbortRun(t *testing.T) {
	cfg, plan := testPlan()
	plan.Commands["a"] = append(plan.Commands["a"], selector.PlannedCommand{Name: "second", Effective: "second"})
	fe := &panicOnHostExecutor{panicHost: "a"}
	opts := Options{SelectHost: func(config.Host) transport.Executor { return fe }}

	outcomes, err := Run(context.Background(), cfg, plan, map[string]bool{}, opts)
	if err != nil {
		t.Fatalf("Run: %v, want no error even though host a panicked", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3 (2 for panicking host a, 1 for host b)", len(outcomes))
	}

	var bOK bool
	var aFailedCount int
	for _, o := range outcomes {
		switch o.Host {
		case "b":
			if o.Status == StatusOK {
				bOK = true
			}
		case "a":
			if o.Status == StatusFailed {
				aFailedCount++
			}
		}
	}
	if !bOK {
		t.Errorf("host b's outcome should be unaffected by host a's panic, got %+v", outcomes)
	}
	if aFailedCount != 2 {
		t.Errorf("expected both of host a's commands to be failed(internal), got %d failed of %+v", aFailedCount, outcomes)
	}
}

// The same containment must hold under SyncMode's serialized Phase 2: a
// panicking host must not stop the hosts after it in plan order.
func TestRunSyncModeHostPanicDoesNotStopLaterHosts(t *testing.T) {
	cfg, plan := testPlan()
	fe := &panicOnHostExecutor{panicHost: "a"}
	opts := Options{SyncMode: true, SelectHost: func(config.Host) transport.Executor { return fe }}

	outcomes, err := Run(context.Background(), cfg, plan, map[string]bool{}, opts)
	if err != nil {
		t.Fatalf("Run: %v, want no error even though host a panicked", err)
	}

	byHost := map[string]Outcome{}
	for _, o := range outcomes {
		byHost[o.Host] = o
	}
	if byHost["a"].Status != StatusFailed {
		t.Errorf("host a status = %v, want StatusFailed", byHost["a"].Status)
	}
	if byHost["b"].Status != StatusOK {
		t.Errorf("host b status = %v, want StatusOK (must still run after a panicked)", byHost["b"].Status)
	}
}

type cancelOnFirstCallExecutor struct {
	cancel context.CancelFunc
	called bool
}

func (c *cancelOnFirstCallExecutor) Execute(ctx context.Context, host config.Host, cmdString string, sink *hostlog.Sink) transport.Result {
	if !c.called {
		c.called = true
		c.cancel()
		return transport.Result{ExitCode: 0}
	}
	return transport.Result{ExitCode: -1, Err: ctx.Err()}
}
