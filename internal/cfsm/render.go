package cfsm

import (
	"fmt"
	"strings"
)

// Render reconstructs local-protocol syntax from the machine. The
// reconstruction is best effort: sequential runs render directly,
// multi-way states render as nested choice blocks, and cycles render as
// rec/continue around their entry state. A flattened transition graph
// does not always round-trip to the source recursion structure.
func (m *Machine) Render() string {
	r := &renderer{m: m, recTargets: m.backEdgeTargets()}
	var sb strings.Builder
	fmt.Fprintf(&sb, "local protocol %s at %s {\n", m.Protocol, m.Role)
	r.renderState(&sb, m.Initial, 1)
	sb.WriteString("}\n")
	return sb.String()
}

// backEdgeTargets finds the states some path loops back to; those are the
// rec points of the reconstruction.
func (m *Machine) backEdgeTargets() map[StateID]bool {
	targets := make(map[StateID]bool)
	onStack := make(map[StateID]bool)
	done := make(map[StateID]bool)

	var walk func(StateID)
	walk = func(id StateID) {
		if done[id] {
			return
		}
		if onStack[id] {
			targets[id] = true
			return
		}
		onStack[id] = true
		for _, tr := range m.State(id).Out {
			walk(tr.To)
		}
		onStack[id] = false
		done[id] = true
	}
	walk(m.Initial)
	return targets
}

type renderer struct {
	m          *Machine
	recTargets map[StateID]bool
	open       []StateID
}

func (r *renderer) isOpen(id StateID) bool {
	for _, s := range r.open {
		if s == id {
			return true
		}
	}
	return false
}

func (r *renderer) renderState(sb *strings.Builder, id StateID, depth int) {
	pad := strings.Repeat("\t", depth)

	if r.recTargets[id] {
		if r.isOpen(id) {
			fmt.Fprintf(sb, "%scontinue loop_s%d;\n", pad, id)
			return
		}
		fmt.Fprintf(sb, "%srec loop_s%d {\n", pad, id)
		r.open = append(r.open, id)
		r.renderBody(sb, id, depth+1)
		r.open = r.open[:len(r.open)-1]
		fmt.Fprintf(sb, "%s}\n", pad)
		return
	}
	r.renderBody(sb, id, depth)
}

func (r *renderer) renderBody(sb *strings.Builder, id StateID, depth int) {
	pad := strings.Repeat("\t", depth)
	st := r.m.State(id)

	switch len(st.Out) {
	case 0:
		// End of the local behaviour.
	case 1:
		fmt.Fprintf(sb, "%s%s;\n", pad, st.Out[0].Action)
		r.renderState(sb, st.Out[0].To, depth)
	default:
		sb.WriteString(pad + "choice {\n")
		for i, tr := range st.Out {
			if i > 0 {
				sb.WriteString(pad + "} or {\n")
			}
			fmt.Fprintf(sb, "%s\t%s;\n", pad, tr.Action)
			r.renderState(sb, tr.To, depth+1)
		}
		sb.WriteString(pad + "}\n")
	}
}

// DOT renders the machine in Graphviz dot syntax.
func (m *Machine) DOT() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", fmt.Sprintf("%s@%s", m.Protocol, m.Role))
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=circle];\n")
	fmt.Fprintf(&sb, "  start [shape=point];\n  start -> s%d;\n", m.Initial)
	for _, s := range m.states {
		shape := ""
		if s.Terminal {
			shape = " [shape=doublecircle]"
		}
		fmt.Fprintf(&sb, "  s%d%s;\n", s.ID, shape)
	}
	for _, s := range m.states {
		for _, tr := range s.Out {
			fmt.Fprintf(&sb, "  s%d -> s%d [label=%q];\n", s.ID, tr.To, tr.Action.String())
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}
