// Package semantics implements the operational layer: typing contexts
// over projected machines, synchronous rendezvous reduction with eager
// tau-closure, bounded execution, and the reachability-based safety
// check. Contexts are immutable values; every reduction allocates a new
// one, which is what makes replay, step-back and memoized search safe.
package semantics

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/cfsm"
)

// Context pairs every role with its machine and current state. The
// machines are shared between contexts; only the state vector differs.
type Context struct {
	roles    []ast.Role
	machines []*cfsm.Machine
	states   []cfsm.StateID
}

// NewContext builds the initial context for a set of projected machines,
// ordered by the given role list. Every role advances through its initial
// tau chain immediately.
func NewContext(order []ast.Role, machines map[ast.Role]*cfsm.Machine) (*Context, error) {
	ctx := &Context{
		roles:    append([]ast.Role(nil), order...),
		machines: make([]*cfsm.Machine, len(order)),
		states:   make([]cfsm.StateID, len(order)),
	}
	for i, r := range order {
		m, ok := machines[r]
		if !ok {
			return nil, fmt.Errorf("context: no machine for role %s", r)
		}
		ctx.machines[i] = m
		ctx.states[i] = tauClosure(m, m.Initial)
	}
	return ctx, nil
}

// Roles returns the role order of the context.
func (c *Context) Roles() []ast.Role { return c.roles }

// StateOf returns the current state of one role, or -1 for a role the
// context does not track.
func (c *Context) StateOf(role ast.Role) cfsm.StateID {
	for i, r := range c.roles {
		if r == role {
			return c.states[i]
		}
	}
	return -1
}

// MachineOf returns one role's machine, or nil.
func (c *Context) MachineOf(role ast.Role) *cfsm.Machine {
	for i, r := range c.roles {
		if r == role {
			return c.machines[i]
		}
	}
	return nil
}

// Terminal reports whether every role is at a terminal-capable state.
func (c *Context) Terminal() bool {
	for i, m := range c.machines {
		if !m.State(c.states[i]).Terminal {
			return false
		}
	}
	return true
}

// Equal reports whether two contexts agree on every role's current state.
func (c *Context) Equal(other *Context) bool {
	if len(c.states) != len(other.states) {
		return false
	}
	for i := range c.states {
		if c.states[i] != other.states[i] || c.roles[i] != other.roles[i] {
			return false
		}
	}
	return true
}

// Key is a compact identity for visited sets during reachability search.
func (c *Context) Key() string {
	var sb strings.Builder
	for i, s := range c.states {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(s)))
	}
	return sb.String()
}

func (c *Context) String() string {
	var sb strings.Builder
	sb.WriteByte('<')
	for i, r := range c.roles {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s@s%d", r, c.states[i])
	}
	sb.WriteByte('>')
	return sb.String()
}

// advance returns a copy of the context with the given role indices moved
// to new states, each pushed through its tau chain.
func (c *Context) advance(moves map[int]cfsm.StateID) *Context {
	next := &Context{
		roles:    c.roles,
		machines: c.machines,
		states:   append([]cfsm.StateID(nil), c.states...),
	}
	for i, to := range moves {
		next.states[i] = tauClosure(next.machines[i], to)
	}
	return next
}

// tauClosure eagerly advances through silent states: while the current
// state offers exactly one transition and it is silent, take it. States
// with several silent transitions are left alone, since picking one would
// resolve a choice the reduction rule does not own.
func tauClosure(m *cfsm.Machine, s cfsm.StateID) cfsm.StateID {
	for hops := 0; hops <= m.Len(); hops++ {
		st := m.State(s)
		if len(st.Out) != 1 || !st.Out[0].Action.Silent() {
			return s
		}
		s = st.Out[0].To
	}
	return s // silent self-loop; nothing better to do than stop
}
