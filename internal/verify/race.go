package verify

import (
	"github.com/scribal-lang/scribal/internal/cfg"
	"github.com/scribal-lang/scribal/internal/diag"
)

// CheckRaces reports channel races between sibling parallel branches.
// Race detection is channel-based, not role-based: two branches race only
// when they use the same (sender, receiver) pair, so a hub sending to two
// different peers in parallel is not a race. Multicasts count one channel
// per receiver.
func CheckRaces(g *cfg.CFG) Result {
	var findings []diag.Diagnostic
	for _, n := range g.Nodes() {
		if n.Kind != cfg.KindFork {
			continue
		}
		branchChannels := make([]map[cfg.Channel]bool, len(n.Out))
		for i, e := range n.Out {
			branchChannels[i] = channelsWithin(g, e.To, n.Join)
		}
		for i := 0; i < len(branchChannels); i++ {
			for j := i + 1; j < len(branchChannels); j++ {
				for ch := range branchChannels[i] {
					if branchChannels[j][ch] {
						findings = append(findings, diag.Errorf("RC001", n.Span,
							"parallel branches %d and %d race on channel %s", i, j, ch))
					}
				}
			}
		}
	}
	return result("race-freedom", g, findings, Fail)
}

// channelsWithin collects every channel used by a fork branch, walking
// from its entry and stopping at the fork's join.
func channelsWithin(g *cfg.CFG, entry, join cfg.NodeID) map[cfg.Channel]bool {
	out := make(map[cfg.Channel]bool)
	seen := map[cfg.NodeID]bool{join: true}
	stack := []cfg.NodeID{entry}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		n := g.Node(id)
		if n == nil {
			continue
		}
		if n.Kind == cfg.KindAction {
			for _, ch := range n.Transfer.Channels() {
				out[ch] = true
			}
		}
		for _, e := range n.Out {
			stack = append(stack, e.To)
		}
	}
	return out
}

// CheckParallelDeadlock builds, per fork, a dependency graph between its
// branches: branch X depends on branch Y when the sender of X's first
// pending action is still due to receive a message inside Y's first
// action. A cycle means every branch waits on another even though no
// single branch contains a structural cycle.
func CheckParallelDeadlock(g *cfg.CFG) Result {
	var findings []diag.Diagnostic
	for _, n := range g.Nodes() {
		if n.Kind != cfg.KindFork {
			continue
		}
		firsts := make([][]*cfg.Transfer, len(n.Out))
		for i, e := range n.Out {
			firsts[i] = firstActions(g, e.To, n.Join)
		}

		deps := make([][]int, len(n.Out))
		for x := range firsts {
			for y := range firsts {
				if x == y {
					continue
				}
				if dependsOn(firsts[x], firsts[y]) {
					deps[x] = append(deps[x], y)
				}
			}
		}
		if cyc := findCycle(deps); cyc != nil {
			findings = append(findings, diag.Errorf("PD001", n.Span,
				"parallel branches %v wait on each other's first message", cyc))
		}
	}
	return result("parallel-deadlock", g, findings, Fail)
}

// dependsOn reports whether some first action of X is sent by a role that
// first has to receive inside Y.
func dependsOn(x, y []*cfg.Transfer) bool {
	for _, fx := range x {
		for _, fy := range y {
			for _, recv := range fy.To {
				if recv == fx.From {
					return true
				}
			}
		}
	}
	return false
}

// firstActions collects the first action node(s) on every path from
// entry, stopping at the enclosing join.
func firstActions(g *cfg.CFG, entry, join cfg.NodeID) []*cfg.Transfer {
	var out []*cfg.Transfer
	seen := map[cfg.NodeID]bool{join: true}
	stack := []cfg.NodeID{entry}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		n := g.Node(id)
		if n == nil {
			continue
		}
		if n.Kind == cfg.KindAction {
			out = append(out, n.Transfer)
			continue // do not look past the first action on this path
		}
		for _, e := range n.Out {
			stack = append(stack, e.To)
		}
	}
	return out
}

// findCycle returns one cycle of the branch dependency graph, or nil.
func findCycle(deps [][]int) []int {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(deps))
	var cyc []int
	closed := false

	var walk func(int) bool
	walk = func(v int) bool {
		state[v] = visiting
		for _, w := range deps[v] {
			switch state[w] {
			case visiting:
				cyc = append(cyc, w)
				if v == w {
					closed = true
				} else {
					cyc = append(cyc, v)
				}
				return true
			case unvisited:
				if walk(w) {
					if !closed {
						if v == cyc[0] {
							closed = true
						} else {
							cyc = append(cyc, v)
						}
					}
					return true
				}
			}
		}
		state[v] = done
		return false
	}
	for v := range deps {
		if state[v] == unvisited && walk(v) {
			// Reverse into dependency order.
			for i, j := 0, len(cyc)-1; i < j; i, j = i+1, j-1 {
				cyc[i], cyc[j] = cyc[j], cyc[i]
			}
			return cyc
		}
	}
	return nil
}
