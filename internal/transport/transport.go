// Package transport implements the two execution backends behind a single
// uniform contract: a local-shell executor for "localhost" and an SSH
// executor (pubkey-file or agent auth) for everything else.
//
// Dispatch is a tagged variant plus one function, not an inheritance
// hierarchy (the teacher's executor.Runner + SSHRunner/Pool split):
// the function Select returns picks the adapter per host, and both
// adapters implement the same Executor interface.
package transport

import (
	"context"

	"github.com/agent462/mussh/internal/config"
	"github.com/agent462/mussh/internal/hostlog"
)

// Result is the outcome of running one command on one host, before the
// caller stamps it with timing and identity (see internal/multiplex.Outcome,
// which mirrors the teacher's Executor/HostResult split: the transport
// layer reports what happened, the orchestrator records when and to whom).
type Result struct {
	Stdout   []byte
	ExitCode int
	Err      error
}

// Executor runs a single command on a single host, streaming stdout lines
// to sink as they arrive, and returns exactly one Result.
type Executor interface {
	Execute(ctx context.Context, host config.Host, cmdString string, sink *hostlog.Sink) Result
}

// Select returns a function that picks the adapter appropriate for a host:
// "localhost" uses the local shell, anything else uses SSH configured
// with opts.
func Select(opts SSHOptions) func(host config.Host) Executor {
	local := &LocalExecutor{}
	ssh := NewSSHExecutor(opts)
	return func(host config.Host) Executor {
		if host.Hostname == "localhost" {
			return local
		}
		return ssh
	}
}
