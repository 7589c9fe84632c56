package cfsm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/cfg"
)

// ProjectResult carries the outcome of projecting every declared role:
// successfully derived machines plus the per-role failures. One role
// failing never blocks the others.
type ProjectResult struct {
	Machines map[ast.Role]*Machine
	Errors   []*ProjectionError
}

// ProjectAll projects the graph for every declared role in declaration
// order, collecting failures instead of aborting.
func ProjectAll(g *cfg.CFG) *ProjectResult {
	res := &ProjectResult{Machines: make(map[ast.Role]*Machine, len(g.Roles))}
	for _, role := range g.Roles {
		m, err := Project(g, role)
		if err != nil {
			var perr *ProjectionError
			if e, ok := err.(*ProjectionError); ok {
				perr = e
			} else {
				perr = &ProjectionError{Role: role, Reason: err.Error()}
			}
			res.Errors = append(res.Errors, perr)
			continue
		}
		res.Machines[role] = m
	}
	return res
}

// Project derives role's local machine from the global graph. The walk
// first translates every reachable CFG node into a raw state whose
// transitions are the role's view of that node (visible actions where the
// role takes part, silent ones elsewhere), then collapses the silent
// transitions away. A determinism violation after collapsing is returned
// as a *ProjectionError.
func Project(g *cfg.CFG, role ast.Role) (*Machine, error) {
	if !g.HasRole(role) {
		return nil, &ProjectionError{Role: role, Reason: fmt.Sprintf("role %s is not declared by protocol %s", role, g.Protocol)}
	}
	p := &projector{g: g, role: role, raw: make(map[cfg.NodeID]int)}
	if err := p.translate(g.Entry); err != nil {
		return nil, err
	}
	return p.collapse()
}

// rawState is one pre-collapse state, one per reachable CFG node.
type rawState struct {
	origin   cfg.NodeID
	terminal bool
	out      []rawTransition
}

type rawTransition struct {
	action Action
	to     cfg.NodeID
}

type projector struct {
	g    *cfg.CFG
	role ast.Role

	raw   map[cfg.NodeID]int
	order []*rawState
}

func (p *projector) state(id cfg.NodeID) *rawState {
	return p.order[p.raw[id]]
}

// translate builds the raw state for node id and, recursively, for every
// node its local view can reach. Memoized: recursion back-edges terminate.
func (p *projector) translate(id cfg.NodeID) error {
	if _, ok := p.raw[id]; ok {
		return nil
	}
	n := p.g.Node(id)
	if n == nil {
		return &ProjectionError{Role: p.role, Node: id, Reason: "edge target missing from graph"}
	}
	rs := &rawState{origin: id}
	p.raw[id] = len(p.order)
	p.order = append(p.order, rs)

	switch n.Kind {
	case cfg.KindTerminal:
		rs.terminal = true
		return nil

	case cfg.KindAction:
		t := n.Transfer
		var act Action = Tau{}
		switch {
		case t.From == p.role:
			act = Send{To: t.To, Msg: t.Msg}
		case containsRole(t.To, p.role):
			act = Receive{From: t.From, Msg: t.Msg}
		}
		return p.follow(rs, act, n.Out)

	case cfg.KindBranch:
		for i, e := range n.Out {
			rs.out = append(rs.out, rawTransition{action: ChoiceMark{Branch: i}, to: e.To})
			if err := p.translate(e.To); err != nil {
				return err
			}
		}
		return nil

	case cfg.KindFork:
		return p.translateFork(rs, n)

	case cfg.KindCall:
		var act Action = Tau{}
		if containsRole(n.Call.Args, p.role) {
			act = Call{Target: n.Call.Target, Dynamic: n.Call.Dynamic}
		}
		return p.follow(rs, act, n.Out)

	default: // initial, merge, join, recursion header
		return p.follow(rs, Tau{}, n.Out)
	}
}

func (p *projector) follow(rs *rawState, act Action, edges []cfg.Edge) error {
	for _, e := range edges {
		rs.out = append(rs.out, rawTransition{action: act, to: e.To})
		if err := p.translate(e.To); err != nil {
			return err
		}
	}
	return nil
}

// translateFork routes the role into the single parallel branch it takes
// part in, or straight past the fork when it takes part in none. A role
// visible in two or more branches of the same fork has no sequential
// local view; that is a projection error.
func (p *projector) translateFork(rs *rawState, fork *cfg.Node) error {
	var involved []cfg.Edge
	for _, e := range fork.Out {
		if p.visibleWithin(e.To, fork.Join) {
			involved = append(involved, e)
		}
	}
	switch len(involved) {
	case 0:
		rs.out = append(rs.out, rawTransition{action: Tau{}, to: fork.Join})
		return p.translate(fork.Join)
	case 1:
		rs.out = append(rs.out, rawTransition{action: Tau{}, to: involved[0].To})
		return p.translate(involved[0].To)
	default:
		return &ProjectionError{
			Role: p.role,
			Node: fork.ID,
			Reason: fmt.Sprintf("role %s takes part in %d parallel branches; a sequential local machine cannot interleave them",
				p.role, len(involved)),
		}
	}
}

// visibleWithin reports whether the role takes part anywhere in a fork
// branch, walking from entry and stopping at the fork's join.
func (p *projector) visibleWithin(entry, join cfg.NodeID) bool {
	seen := map[cfg.NodeID]bool{join: true}
	stack := []cfg.NodeID{entry}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		n := p.g.Node(id)
		if n == nil {
			continue
		}
		switch n.Kind {
		case cfg.KindAction:
			if n.Transfer.From == p.role || containsRole(n.Transfer.To, p.role) {
				return true
			}
		case cfg.KindBranch:
			if n.Decider == p.role {
				return true
			}
		case cfg.KindCall:
			if containsRole(n.Call.Args, p.role) {
				return true
			}
		}
		for _, e := range n.Out {
			stack = append(stack, e.To)
		}
	}
	return false
}

// collapse removes the silent transitions: every kept state offers the
// union of visible actions reachable through silent moves, and is
// terminal-capable when a terminal raw state is silently reachable. The
// result is then checked for local determinism.
func (p *projector) collapse() (*Machine, error) {
	m := &Machine{Protocol: p.g.Protocol, Role: p.role}

	assigned := make(map[cfg.NodeID]StateID)
	var queue []cfg.NodeID

	alloc := func(id cfg.NodeID) StateID {
		if sid, ok := assigned[id]; ok {
			return sid
		}
		sid := StateID(len(m.states))
		assigned[id] = sid
		m.states = append(m.states, &State{ID: sid, Origin: id})
		queue = append(queue, id)
		return sid
	}

	m.Initial = alloc(p.g.Entry)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		st := m.states[assigned[id]]

		closure := p.silentClosure(id)
		seen := make(map[string]bool)
		for _, cid := range closure {
			rs := p.state(cid)
			if rs.terminal {
				st.Terminal = true
			}
			for _, tr := range rs.out {
				if tr.action.Silent() {
					continue
				}
				key := fmt.Sprintf("%s>%d", tr.action.Signature(), tr.to)
				if seen[key] {
					continue
				}
				seen[key] = true
				st.Out = append(st.Out, Transition{Action: tr.action, To: alloc(tr.to)})
			}
		}
		st.Kind = stateKind(st)
	}

	m = minimize(m)

	for _, st := range m.states {
		bysig := make(map[string]StateID)
		for _, tr := range st.Out {
			sig := tr.Action.Signature()
			if prev, ok := bysig[sig]; ok && prev != tr.To {
				return nil, &ProjectionError{
					Role: p.role,
					Node: st.Origin,
					Reason: fmt.Sprintf("nondeterministic after tau collapsing: action %s leads to both s%d and s%d (visible actions: %v)",
						sig, prev, tr.To, sortedSignatures(st)),
				}
			}
			bysig[sig] = tr.To
		}
	}
	return m, nil
}

// silentClosure returns the raw states reachable from id through silent
// transitions only, id included, in stable (allocation) order.
func (p *projector) silentClosure(id cfg.NodeID) []cfg.NodeID {
	seen := make(map[cfg.NodeID]bool)
	var out []cfg.NodeID
	var walk func(cfg.NodeID)
	walk = func(cur cfg.NodeID) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		out = append(out, cur)
		for _, tr := range p.state(cur).out {
			if tr.action.Silent() {
				walk(tr.to)
			}
		}
	}
	walk(id)
	sort.Slice(out, func(i, j int) bool { return p.raw[out[i]] < p.raw[out[j]] })
	return out
}

// minimize merges behaviourally identical states by partition refinement:
// two states are one iff they agree on terminality and offer the same
// actions into the same classes. Without this, branches whose local views
// converge would be reported as false determinism violations.
func minimize(m *Machine) *Machine {
	n := len(m.states)
	part := make([]int, n)
	for i, s := range m.states {
		if s.Terminal {
			part[i] = 1
		}
	}

	for {
		keys := make([]string, n)
		for i, s := range m.states {
			sigs := make([]string, 0, len(s.Out)+1)
			if s.Terminal {
				sigs = append(sigs, "$terminal")
			}
			for _, tr := range s.Out {
				sigs = append(sigs, fmt.Sprintf("%s>%d", tr.Action.Signature(), part[tr.To]))
			}
			sort.Strings(sigs)
			keys[i] = fmt.Sprintf("%d|%s", part[i], strings.Join(sigs, " "))
		}
		next := make([]int, n)
		index := make(map[string]int)
		changed := false
		for i, k := range keys {
			cls, ok := index[k]
			if !ok {
				cls = len(index)
				index[k] = cls
			}
			next[i] = cls
			if next[i] != part[i] {
				changed = true
			}
		}
		part = next
		if !changed {
			break
		}
	}

	// Rebuild with one state per class, numbered in discovery order from
	// the initial state so repeated projections stay structurally equal.
	rep := make(map[int]StateID)
	out := &Machine{Protocol: m.Protocol, Role: m.Role}
	var queue []StateID

	alloc := func(old StateID) StateID {
		cls := part[old]
		if sid, ok := rep[cls]; ok {
			return sid
		}
		sid := StateID(len(out.states))
		rep[cls] = sid
		src := m.states[old]
		out.states = append(out.states, &State{ID: sid, Kind: src.Kind, Origin: src.Origin, Terminal: src.Terminal})
		queue = append(queue, old)
		return sid
	}

	out.Initial = alloc(m.Initial)
	for len(queue) > 0 {
		old := queue[0]
		queue = queue[1:]
		st := out.states[rep[part[old]]]
		seen := make(map[string]bool)
		for _, tr := range m.states[old].Out {
			to := alloc(tr.To)
			key := fmt.Sprintf("%s>%d", tr.Action.Signature(), to)
			if seen[key] {
				continue
			}
			seen[key] = true
			st.Out = append(st.Out, Transition{Action: tr.Action, To: to})
		}
		st.Kind = stateKind(st)
	}
	return out
}

func stateKind(st *State) StateKind {
	if len(st.Out) == 0 {
		return StateTerminal
	}
	if len(st.Out) > 1 {
		return StateChoice
	}
	switch st.Out[0].Action.(type) {
	case Send:
		return StateSend
	case Receive:
		return StateReceive
	case Call:
		return StateCall
	default:
		return StateInternal
	}
}

func containsRole(rs []ast.Role, r ast.Role) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}
