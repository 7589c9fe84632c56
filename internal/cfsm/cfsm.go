// Package cfsm defines the per-role communicating finite state machine
// and the projection that derives one from a global control-flow graph.
// Machines are built once and never mutated; any number of checkers and
// simulators may read one concurrently.
package cfsm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/cfg"
)

// StateID indexes a state within one machine.
type StateID int

// StateKind classifies a state by what the role does there.
type StateKind int

const (
	StateInitial StateKind = iota
	StateTerminal
	StateSend
	StateReceive
	StateChoice
	StateCall
	StateInternal
)

func (k StateKind) String() string {
	switch k {
	case StateInitial:
		return "initial"
	case StateTerminal:
		return "terminal"
	case StateSend:
		return "send"
	case StateReceive:
		return "receive"
	case StateChoice:
		return "choice"
	case StateCall:
		return "call"
	case StateInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Action is the label of one local transition. Exactly five kinds exist:
// Send, Receive, Tau, ChoiceMark and Call; consumers switch exhaustively.
type Action interface {
	// Silent reports whether the action is externally invisible.
	Silent() bool
	// Signature is a stable key identifying the visible action for
	// determinism checks and rendezvous matching.
	Signature() string
	String() string
}

// Send emits one message to one or more peers. A multicast stays a single
// send action listing every receiver.
type Send struct {
	To  []ast.Role
	Msg ast.MessageSig
}

func (s Send) Silent() bool { return false }
func (s Send) Signature() string {
	return fmt.Sprintf("!%s:%s", joinRoles(s.To), s.Msg.Label)
}
func (s Send) String() string { return fmt.Sprintf("%s to %s", s.Msg, joinRoles(s.To)) }

// Receive consumes one message from a peer.
type Receive struct {
	From ast.Role
	Msg  ast.MessageSig
}

func (r Receive) Silent() bool      { return false }
func (r Receive) Signature() string { return fmt.Sprintf("?%s:%s", r.From, r.Msg.Label) }
func (r Receive) String() string    { return fmt.Sprintf("%s from %s", r.Msg, r.From) }

// Tau is a silent state change.
type Tau struct{}

func (Tau) Silent() bool      { return true }
func (Tau) Signature() string { return "tau" }
func (Tau) String() string    { return "tau" }

// ChoiceMark is the structural marker on a branch taken at a choice
// point before any visible action distinguishes it. Like Tau it is
// externally invisible.
type ChoiceMark struct {
	Branch int
}

func (c ChoiceMark) Silent() bool      { return true }
func (c ChoiceMark) Signature() string { return fmt.Sprintf("choice#%d", c.Branch) }
func (c ChoiceMark) String() string    { return fmt.Sprintf("choice branch %d", c.Branch) }

// Call marks a sub-protocol invocation the role participates in.
type Call struct {
	Target  string
	Dynamic bool
}

func (c Call) Silent() bool      { return false }
func (c Call) Signature() string { return fmt.Sprintf("call:%s", c.Target) }
func (c Call) String() string {
	if c.Dynamic {
		return "invite"
	}
	return fmt.Sprintf("do %s", c.Target)
}

// Transition is one labeled edge between two states of the same machine.
type Transition struct {
	Action Action
	To     StateID
}

// State is one vertex of a machine. Origin points back at the CFG node
// the state was projected from, for traceability. Terminal marks states
// from which the role may stop (it can carry outgoing transitions too,
// on machines where termination competes with further actions).
type State struct {
	ID       StateID
	Kind     StateKind
	Origin   cfg.NodeID
	Terminal bool
	Out      []Transition
}

// Machine is one role's local view of a protocol.
type Machine struct {
	Protocol string
	Role     ast.Role
	Initial  StateID

	states []*State
}

// NewMachine assembles a machine from explicit states. Projection is the
// normal way to obtain a machine; this constructor serves tests and tools
// that load machines from external descriptions. The state slice is
// adopted, not copied, and must be indexed by StateID.
func NewMachine(protocol string, role ast.Role, initial StateID, states []*State) *Machine {
	return &Machine{Protocol: protocol, Role: role, Initial: initial, states: states}
}

// State returns the state with the given id, or nil when out of range.
func (m *Machine) State(id StateID) *State {
	if int(id) < 0 || int(id) >= len(m.states) {
		return nil
	}
	return m.states[id]
}

// States returns all states in allocation order; callers must not modify.
func (m *Machine) States() []*State { return m.states }

// Len returns the state count.
func (m *Machine) Len() int { return len(m.states) }

// Terminals returns the ids of all terminal-capable states.
func (m *Machine) Terminals() []StateID {
	var out []StateID
	for _, s := range m.states {
		if s.Terminal {
			out = append(out, s.ID)
		}
	}
	return out
}

// Equal reports structural identity: same role, same state count, and
// state-by-state identical kind, terminal flag and transition list. Used
// by tests to pin down projection determinism.
func (m *Machine) Equal(other *Machine) bool {
	if m.Role != other.Role || len(m.states) != len(other.states) || m.Initial != other.Initial {
		return false
	}
	for i, s := range m.states {
		o := other.states[i]
		if s.Kind != o.Kind || s.Terminal != o.Terminal || len(s.Out) != len(o.Out) {
			return false
		}
		for j, tr := range s.Out {
			if tr.To != o.Out[j].To || tr.Action.Signature() != o.Out[j].Action.Signature() {
				return false
			}
		}
	}
	return true
}

// String renders the machine one state per line, for debugging and tests.
func (m *Machine) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cfsm %s@%s\n", m.Protocol, m.Role)
	for _, s := range m.states {
		term := ""
		if s.Terminal {
			term = " (terminal)"
		}
		fmt.Fprintf(&sb, "  s%d %s%s\n", s.ID, s.Kind, term)
		for _, tr := range s.Out {
			fmt.Fprintf(&sb, "    %s -> s%d\n", tr.Action, tr.To)
		}
	}
	return sb.String()
}

// ProjectionError is a per-role projection failure (tier 2: recoverable,
// collected by ProjectAll rather than aborting the other roles).
type ProjectionError struct {
	Role   ast.Role
	Node   cfg.NodeID
	Reason string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("projecting role %s at node #%d: %s", e.Role, e.Node, e.Reason)
}

func joinRoles(rs []ast.Role) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// sortedSignatures lists a state's visible action signatures in stable
// order, used by diagnostics.
func sortedSignatures(s *State) []string {
	var out []string
	for _, tr := range s.Out {
		if !tr.Action.Silent() {
			out = append(out, tr.Action.Signature())
		}
	}
	sort.Strings(out)
	return out
}
