package verify

import (
	"sort"

	"github.com/scribal-lang/scribal/internal/cfg"
	"github.com/scribal-lang/scribal/internal/diag"
)

// CheckProgress verifies liveness at the graph level: a node is blocked
// when no path from it ever reaches a firing action or a terminal node.
// The protocol has progress when no reachable node is blocked.
func CheckProgress(g *cfg.CFG) Result {
	// Fixed point over "can reach an action or terminal": seed with the
	// firing nodes themselves, then pull predecessors in until stable.
	live := make(map[cfg.NodeID]bool)
	for _, n := range g.Nodes() {
		switch n.Kind {
		case cfg.KindAction, cfg.KindCall, cfg.KindTerminal:
			live[n.ID] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, n := range g.Nodes() {
			if live[n.ID] {
				continue
			}
			for _, e := range n.Out {
				if live[e.To] {
					live[n.ID] = true
					changed = true
					break
				}
			}
		}
	}

	var blocked []cfg.NodeID
	reach := reachable(g)
	for _, n := range g.Nodes() {
		if reach[n.ID] && !live[n.ID] && n.Kind != cfg.KindTerminal {
			blocked = append(blocked, n.ID)
		}
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i] < blocked[j] })

	var findings []diag.Diagnostic
	for _, id := range blocked {
		findings = append(findings, diag.Errorf("PG001", g.Node(id).Span,
			"node %s can never reach a communication or terminal", g.Node(id)))
	}
	return result("progress", g, findings, Fail)
}
