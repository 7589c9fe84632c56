package verify

import (
	"sort"

	"github.com/scribal-lang/scribal/internal/cfg"
	"github.com/scribal-lang/scribal/internal/diag"
)

// CheckDeadlock finds cycles that contain no node able to fire a
// communication: control can enter such a cycle and then never again
// exchange a message or terminate. Cycles are located as strongly
// connected components, so the check stays linear in graph size.
func CheckDeadlock(g *cfg.CFG) Result {
	var findings []diag.Diagnostic
	for _, comp := range stronglyConnected(g) {
		if !isCycle(g, comp) {
			continue
		}
		fires := false
		for _, id := range comp {
			switch g.Node(id).Kind {
			case cfg.KindAction, cfg.KindCall:
				fires = true
			}
		}
		if fires {
			continue
		}
		span := g.Node(comp[0]).Span
		findings = append(findings, diag.Errorf("DL001", span,
			"cycle through nodes %v never fires a communication", comp))
	}
	return result("deadlock", g, findings, Fail)
}

// isCycle reports whether a component actually loops: more than one node,
// or a single node with a self-edge.
func isCycle(g *cfg.CFG, comp []cfg.NodeID) bool {
	if len(comp) > 1 {
		return true
	}
	for _, e := range g.Succ(comp[0]) {
		if e.To == comp[0] {
			return true
		}
	}
	return false
}

// stronglyConnected runs Tarjan's algorithm, iteratively to keep deep
// recursion graphs off the call stack. Components come out with their
// node ids sorted for stable diagnostics.
func stronglyConnected(g *cfg.CFG) [][]cfg.NodeID {
	index := make(map[cfg.NodeID]int)
	low := make(map[cfg.NodeID]int)
	onStack := make(map[cfg.NodeID]bool)
	var stack []cfg.NodeID
	var comps [][]cfg.NodeID
	next := 0

	type frame struct {
		id   cfg.NodeID
		edge int
	}

	for _, start := range g.Nodes() {
		if _, done := index[start.ID]; done {
			continue
		}
		frames := []frame{{id: start.ID}}
		index[start.ID] = next
		low[start.ID] = next
		next++
		stack = append(stack, start.ID)
		onStack[start.ID] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			edges := g.Succ(f.id)
			if f.edge < len(edges) {
				to := edges[f.edge].To
				f.edge++
				if _, seen := index[to]; !seen {
					index[to] = next
					low[to] = next
					next++
					stack = append(stack, to)
					onStack[to] = true
					frames = append(frames, frame{id: to})
				} else if onStack[to] && index[to] < low[f.id] {
					low[f.id] = index[to]
				}
				continue
			}

			if low[f.id] == index[f.id] {
				var comp []cfg.NodeID
				for {
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[top] = false
					comp = append(comp, top)
					if top == f.id {
						break
					}
				}
				sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
				comps = append(comps, comp)
			}

			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := &frames[len(frames)-1]
				if low[f.id] < low[parent.id] {
					low[parent.id] = low[f.id]
				}
			}
		}
	}
	return comps
}
