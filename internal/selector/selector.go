// Package selector resolves command-line host/group tokens and command
// tokens against a config.Config into a concrete execution Plan.
//
// The resolution algorithm and its ordered-dedup bookkeeping follow the
// same shape as the teacher's REPL token resolver (internal/selector in
// the herd reference repo): build an ordered set preserving first-occurrence
// order, then apply exclusions, then intersect with what's actually
// configured. The token grammar itself is mussh's own (group-or-host names
// plus a leading "!" for exclusion), not herd's "@"-prefixed selector
// language — herd's dynamic @ok/@failed/@differs selectors have no
// analogue here since there is no prior command result to select against.
package selector

import (
	"fmt"
	"strings"

	"github.com/agent462/mussh/internal/config"
	"github.com/agent462/mussh/internal/muserr"
)

// PlannedCommand is a single command slated to run on a host, after alias
// substitution.
type PlannedCommand struct {
	Name      string // the nominal command name the operator asked for
	Effective string // the command string actually executed (post-alias)
}

// Plan is the resolved host -> ordered command list mapping for one
// selection.
type Plan struct {
	Hosts    []string // ordered, first-occurrence order, deduplicated
	Commands map[string][]PlannedCommand
}

// Request bundles everything needed to resolve one selection: the
// positive/exclusion host tokens and the command-name tokens.
type Request struct {
	HostTokens    []string
	CommandTokens []string
}

// Resolve turns a Request into a Plan against cfg, returning any warnings
// for unknown host or command tokens. It never fails on unknown tokens
// alone; callers decide whether an empty resulting Plan constitutes
// muserr.SelectionEmpty.
func Resolve(cfg *config.Config, req Request) (*Plan, []muserr.Warning, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("resolve: nil config")
	}

	var warnings []muserr.Warning

	hosts, hostWarnings := resolveHosts(cfg, req.HostTokens)
	warnings = append(warnings, hostWarnings...)

	cmds, cmdWarnings := resolveCommands(cfg, req.CommandTokens)
	warnings = append(warnings, cmdWarnings...)

	plan := &Plan{
		Hosts:    hosts,
		Commands: make(map[string][]PlannedCommand, len(hosts)),
	}
	for _, hostName := range hosts {
		host := cfg.Hosts[hostName]
		planned := make([]PlannedCommand, 0, len(cmds))
		for _, cmd := range cmds {
			planned = append(planned, PlannedCommand{
				Name:      cmd.Name,
				Effective: effectiveCommand(host, cmd, cfg),
			})
		}
		plan.Commands[hostName] = planned
	}

	return plan, warnings, nil
}

// resolveHosts partitions tokens into positives/exclusions, expands
// groups, dedups with first-occurrence order, removes exclusions, then
// intersects with configured host names.
func resolveHosts(cfg *config.Config, tokens []string) ([]string, []muserr.Warning) {
	var positives, exclusions []string
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, "!") {
			exclusions = append(exclusions, strings.TrimPrefix(tok, "!"))
		} else {
			positives = append(positives, tok)
		}
	}

	seen := make(map[string]bool)
	var ordered []string
	var unknown []string

	for _, tok := range positives {
		if group, ok := cfg.HostGroups[tok]; ok {
			for _, member := range group.Members {
				if !seen[member] {
					seen[member] = true
					ordered = append(ordered, member)
				}
			}
			continue
		}
		// Not a group: treat as a direct host name.
		if !seen[tok] {
			seen[tok] = true
			ordered = append(ordered, tok)
		}
	}

	excluded := make(map[string]bool, len(exclusions))
	for _, e := range exclusions {
		excluded[e] = true
	}

	var result []string
	for _, h := range ordered {
		if excluded[h] {
			continue
		}
		if _, ok := cfg.Hosts[h]; !ok {
			unknown = append(unknown, h)
			continue
		}
		result = append(result, h)
	}

	var warnings []muserr.Warning
	if len(unknown) > 0 {
		warnings = append(warnings, muserr.Warning{
			Kind:  muserr.SelectionWarning,
			Token: "unknown host(s): " + strings.Join(unknown, ", "),
		})
	}

	return result, warnings
}

// resolveCommands looks up each command token in order, dropping and
// warning about unknown names. Order is preserved (A4).
func resolveCommands(cfg *config.Config, tokens []string) ([]config.Command, []muserr.Warning) {
	var result []config.Command
	var unknown []string

	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		cmd, ok := cfg.Commands[tok]
		if !ok {
			unknown = append(unknown, tok)
			continue
		}
		result = append(result, cmd)
	}

	var warnings []muserr.Warning
	if len(unknown) > 0 {
		warnings = append(warnings, muserr.Warning{
			Kind:  muserr.SelectionWarning,
			Token: "unknown command(s): " + strings.Join(unknown, ", "),
		})
	}

	return result, warnings
}

// effectiveCommand applies A3: if host has an alias whose AliasFor matches
// cmd.Name, and the aliased command name resolves in cfg.Commands, its
// string replaces cmd.Command. The first matching alias in declaration
// order wins.
func effectiveCommand(host config.Host, cmd config.Command, cfg *config.Config) string {
	for _, alias := range host.Aliases {
		if alias.AliasFor != cmd.Name {
			continue
		}
		if aliased, ok := cfg.Commands[alias.Command]; ok {
			return aliased.Command
		}
		// Alias points at an unknown command: fall through to the nominal string.
		break
	}
	return cmd.Command
}

// SyncCohort returns the set of hosts present in syncPlan: a host
// appearing in both the primary and sync plans receives the union of
// their commands, with sync commands executed in the sync phase.
func SyncCohort(syncPlan *Plan) map[string]bool {
	cohort := make(map[string]bool, len(syncPlan.Hosts))
	for _, h := range syncPlan.Hosts {
		cohort[h] = true
	}
	return cohort
}
