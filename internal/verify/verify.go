// Package verify implements the static analyses over a control-flow
// graph: deadlock cycles, parallel deadlock, channel races, progress,
// global choice determinism and multicast consistency. Every analysis
// returns a structured result and never panics on a well-formed graph.
package verify

import (
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/scribal-lang/scribal/internal/cfg"
	"github.com/scribal-lang/scribal/internal/diag"
)

// Outcome classifies an analysis result.
type Outcome int

const (
	Pass Outcome = iota
	Fail
	Warn
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Warn:
		return "warn"
	default:
		return "unknown"
	}
}

// Result is one analysis verdict with its findings.
type Result struct {
	Analysis string            `json:"analysis"`
	Protocol string            `json:"protocol"`
	Outcome  Outcome           `json:"outcome"`
	Findings []diag.Diagnostic `json:"findings,omitempty"`
}

// Passed reports whether the analysis found nothing blocking (warnings
// do not fail a protocol).
func (r Result) Passed() bool { return r.Outcome != Fail }

func (r Result) String() string {
	if len(r.Findings) == 0 {
		return fmt.Sprintf("%s: %s", r.Analysis, r.Outcome)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", r.Analysis, r.Outcome)
	for _, d := range r.Findings {
		fmt.Fprintf(&sb, "\n  %s", d)
	}
	return sb.String()
}

// Check is one analysis over a graph.
type Check func(*cfg.CFG) Result

// Checks lists every analysis in report order.
func Checks() []Check {
	return []Check{
		CheckDeadlock,
		CheckParallelDeadlock,
		CheckRaces,
		CheckProgress,
		CheckChoiceDeterminism,
		CheckMulticast,
	}
}

// RunAll runs every analysis over the graph concurrently. The graph is
// immutable, so the checks share it without synchronization.
func RunAll(g *cfg.CFG) []Result {
	checks := Checks()
	results := make([]Result, len(checks))
	var eg errgroup.Group
	for i, check := range checks {
		i, check := i, check
		eg.Go(func() error {
			results[i] = check(g)
			return nil
		})
	}
	// The checks only report through results; no errors to surface.
	_ = eg.Wait()
	return results
}

func result(analysis string, g *cfg.CFG, findings []diag.Diagnostic, worst Outcome) Result {
	out := Result{Analysis: analysis, Protocol: g.Protocol, Findings: findings}
	if len(findings) > 0 {
		out.Outcome = worst
	}
	return out
}

// reachable returns every node reachable from the entry.
func reachable(g *cfg.CFG) map[cfg.NodeID]bool {
	seen := make(map[cfg.NodeID]bool)
	stack := []cfg.NodeID{g.Entry}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, e := range g.Succ(id) {
			stack = append(stack, e.To)
		}
	}
	return seen
}
