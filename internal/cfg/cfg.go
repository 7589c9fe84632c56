// Package cfg defines the control-flow graph for a global protocol and
// the builder that lowers a protocol AST into it. A CFG is built once and
// never mutated afterwards; any number of analyses may read it
// concurrently without synchronization.
package cfg

import (
	"fmt"
	"strings"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/source"
)

// NodeID uniquely identifies a node across every CFG built through the
// same Session. Identifiers are never reused within a session, so nodes
// from two different protocol builds never collide.
type NodeID uint64

// NodeKind classifies a CFG node.
type NodeKind int

const (
	KindInitial NodeKind = iota
	KindTerminal
	KindAction
	KindBranch
	KindMerge
	KindFork
	KindJoin
	KindRecHeader
	KindCall
)

func (k NodeKind) String() string {
	switch k {
	case KindInitial:
		return "initial"
	case KindTerminal:
		return "terminal"
	case KindAction:
		return "action"
	case KindBranch:
		return "branch"
	case KindMerge:
		return "merge"
	case KindFork:
		return "fork"
	case KindJoin:
		return "join"
	case KindRecHeader:
		return "rec"
	case KindCall:
		return "call"
	default:
		return "unknown"
	}
}

// EdgeKind classifies a CFG edge.
type EdgeKind int

const (
	EdgeSequence EdgeKind = iota
	EdgeMessage
	EdgeBranch
	EdgeFork
	EdgeContinue
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeSequence:
		return "seq"
	case EdgeMessage:
		return "msg"
	case EdgeBranch:
		return "branch"
	case EdgeFork:
		return "fork"
	case EdgeContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// Edge is a directed edge between two nodes.
type Edge struct {
	From NodeID
	To   NodeID
	Kind EdgeKind
}

// Transfer is the message transfer carried by an action node. For a
// multicast there is still exactly one action node; To lists every
// receiver.
type Transfer struct {
	From ast.Role
	To   []ast.Role
	Msg  ast.MessageSig
}

func (t *Transfer) String() string {
	tos := make([]string, len(t.To))
	for i, r := range t.To {
		tos[i] = string(r)
	}
	return fmt.Sprintf("%s->%s:%s", t.From, strings.Join(tos, ","), t.Msg.Label)
}

// Channels expands the transfer into its (sender, receiver) channel set,
// one channel per receiver.
func (t *Transfer) Channels() []Channel {
	out := make([]Channel, len(t.To))
	for i, r := range t.To {
		out[i] = Channel{From: t.From, To: r}
	}
	return out
}

// Channel is an ordered (sender, receiver) pair, the unit of race analysis.
type Channel struct {
	From ast.Role
	To   ast.Role
}

func (c Channel) String() string { return fmt.Sprintf("(%s,%s)", c.From, c.To) }

// CallInfo describes a sub-protocol invocation left in the graph as a
// call node: either an unresolved/depth-limited `do`, or a DMst `invite`
// lowered with Dynamic set.
type CallInfo struct {
	Target     string
	Constraint string
	Args       []ast.Role
	Dynamic    bool
}

func (c *CallInfo) String() string {
	args := make([]string, len(c.Args))
	for i, r := range c.Args {
		args[i] = string(r)
	}
	if c.Dynamic {
		return fmt.Sprintf("invite(%s)", strings.Join(args, ","))
	}
	return fmt.Sprintf("do %s(%s)", c.Target, strings.Join(args, ","))
}

// Node is one vertex of the graph. Exactly one of the payload fields is
// set, matching Kind: Transfer for action nodes, Decider for branch
// nodes, Label for recursion headers, Call for call nodes, JoinArity for
// join nodes, Join for fork nodes.
type Node struct {
	ID   NodeID
	Kind NodeKind
	Span source.Span

	Transfer  *Transfer
	Decider   ast.Role
	Label     string
	Call      *CallInfo
	JoinArity int
	Join      NodeID // matching join (fork nodes) or merge (branch nodes)

	Out []Edge
}

func (n *Node) String() string {
	switch n.Kind {
	case KindAction:
		return fmt.Sprintf("#%d action %s", n.ID, n.Transfer)
	case KindBranch:
		return fmt.Sprintf("#%d branch at %s", n.ID, n.Decider)
	case KindRecHeader:
		return fmt.Sprintf("#%d rec %s", n.ID, n.Label)
	case KindCall:
		return fmt.Sprintf("#%d %s", n.ID, n.Call)
	default:
		return fmt.Sprintf("#%d %s", n.ID, n.Kind)
	}
}

// CFG is the immutable control-flow graph of one protocol.
type CFG struct {
	Protocol string
	Roles    []ast.Role

	Entry NodeID
	Exit  NodeID

	nodes []*Node
	index map[NodeID]int
}

// Node returns the node with the given id, or nil if it belongs to a
// different graph.
func (g *CFG) Node(id NodeID) *Node {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.nodes[i]
}

// Nodes returns every node in allocation order. Callers must not modify
// the returned slice or the nodes it points to.
func (g *CFG) Nodes() []*Node { return g.nodes }

// Len returns the node count.
func (g *CFG) Len() int { return len(g.nodes) }

// HasRole reports whether r is one of the protocol's declared roles.
func (g *CFG) HasRole(r ast.Role) bool {
	for _, d := range g.Roles {
		if d == r {
			return true
		}
	}
	return false
}

// Succ returns the outgoing edges of id in allocation order.
func (g *CFG) Succ(id NodeID) []Edge {
	n := g.Node(id)
	if n == nil {
		return nil
	}
	return n.Out
}

// String renders the graph one node per line, for debugging and tests.
func (g *CFG) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cfg %s roles=%v\n", g.Protocol, g.Roles)
	for _, n := range g.nodes {
		fmt.Fprintf(&sb, "  %s\n", n)
		for _, e := range n.Out {
			fmt.Fprintf(&sb, "    -%s-> #%d\n", e.Kind, e.To)
		}
	}
	return sb.String()
}
