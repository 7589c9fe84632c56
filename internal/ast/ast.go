// Package ast defines the protocol abstract syntax tree consumed by the
// CFG builder. Values are produced by the parser (or constructed directly
// by tests and embedding tools) and are treated as immutable afterwards:
// nothing in this module mutates an AST after construction.
package ast

import (
	"fmt"
	"strings"

	"github.com/scribal-lang/scribal/internal/source"
)

// Role names one participant of a protocol.
type Role string

// Node is the base interface for all AST nodes.
type Node interface {
	// GetSpan returns the source span for this node.
	GetSpan() source.Span
	// String returns a compact, single-line representation.
	String() string
	// Accept implements the visitor pattern.
	Accept(v Visitor) interface{}
}

// Interaction represents all protocol body constructs.
type Interaction interface {
	Node
	interactionNode()
}

// ====== Module and protocol structure ======

// Module is the root of a parsed source file: zero or more protocols
// under an optional module name.
type Module struct {
	Span      source.Span
	Name      string
	Protocols []*Protocol
}

func (m *Module) GetSpan() source.Span         { return m.Span }
func (m *Module) String() string               { return fmt.Sprintf("module %s", m.Name) }
func (m *Module) Accept(v Visitor) interface{} { return v.VisitModule(m) }

// Protocol declares a named global protocol over an ordered, unique role
// set and an interaction body.
type Protocol struct {
	Span  source.Span
	Name  string
	Roles []Role
	Body  *Block
}

func (p *Protocol) GetSpan() source.Span         { return p.Span }
func (p *Protocol) String() string               { return fmt.Sprintf("protocol %s", p.Name) }
func (p *Protocol) Accept(v Visitor) interface{} { return v.VisitProtocol(p) }

// HasRole reports whether r is in the declared role set.
func (p *Protocol) HasRole(r Role) bool {
	for _, d := range p.Roles {
		if d == r {
			return true
		}
	}
	return false
}

// Block is an ordered interaction sequence.
type Block struct {
	Span         source.Span
	Interactions []Interaction
}

func (b *Block) GetSpan() source.Span         { return b.Span }
func (b *Block) String() string               { return fmt.Sprintf("block(%d)", len(b.Interactions)) }
func (b *Block) Accept(v Visitor) interface{} { return v.VisitBlock(b) }

// ====== Message signatures ======

// TypeRef is a payload type reference, either simple (int) or parametric
// and arbitrarily nested (list<map<string, int>>).
type TypeRef struct {
	Name   string
	Params []TypeRef
}

func (t TypeRef) String() string {
	if len(t.Params) == 0 {
		return t.Name
	}
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s<%s>", t.Name, strings.Join(parts, ", "))
}

// Payload is one typed payload slot with an optional name.
type Payload struct {
	Name string // may be empty
	Type TypeRef
}

func (p Payload) String() string {
	if p.Name == "" {
		return p.Type.String()
	}
	return fmt.Sprintf("%s: %s", p.Name, p.Type)
}

// MessageSig is a message label with its payload slots.
type MessageSig struct {
	Label    string
	Payloads []Payload
}

func (m MessageSig) String() string {
	parts := make([]string, len(m.Payloads))
	for i, p := range m.Payloads {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s(%s)", m.Label, strings.Join(parts, ", "))
}

// ====== Interactions ======

// Transfer is a message transfer from one sender to one or more receivers.
type Transfer struct {
	Span source.Span
	From Role
	To   []Role
	Msg  MessageSig
}

func (t *Transfer) GetSpan() source.Span { return t.Span }
func (t *Transfer) String() string {
	tos := make([]string, len(t.To))
	for i, r := range t.To {
		tos[i] = string(r)
	}
	return fmt.Sprintf("%s -> %s: %s", t.From, strings.Join(tos, ", "), t.Msg)
}
func (t *Transfer) Accept(v Visitor) interface{} { return v.VisitTransfer(t) }
func (t *Transfer) interactionNode()             {}

// IsMulticast reports whether the transfer has more than one receiver.
func (t *Transfer) IsMulticast() bool { return len(t.To) > 1 }

// Choice is a branching point decided by one role.
type Choice struct {
	Span     source.Span
	At       Role
	Branches []*Block
}

func (c *Choice) GetSpan() source.Span { return c.Span }
func (c *Choice) String() string {
	return fmt.Sprintf("choice at %s (%d branches)", c.At, len(c.Branches))
}
func (c *Choice) Accept(v Visitor) interface{} { return v.VisitChoice(c) }
func (c *Choice) interactionNode()             {}

// Parallel runs two or more branches concurrently (by interleaving).
type Parallel struct {
	Span     source.Span
	Branches []*Block
}

func (p *Parallel) GetSpan() source.Span         { return p.Span }
func (p *Parallel) String() string               { return fmt.Sprintf("par (%d branches)", len(p.Branches)) }
func (p *Parallel) Accept(v Visitor) interface{} { return v.VisitParallel(p) }
func (p *Parallel) interactionNode()             {}

// Recursion scopes a body under a loop label.
type Recursion struct {
	Span  source.Span
	Label string
	Body  *Block
}

func (r *Recursion) GetSpan() source.Span         { return r.Span }
func (r *Recursion) String() string               { return fmt.Sprintf("rec %s", r.Label) }
func (r *Recursion) Accept(v Visitor) interface{} { return v.VisitRecursion(r) }
func (r *Recursion) interactionNode()             {}

// Continue jumps back to an enclosing recursion label.
type Continue struct {
	Span  source.Span
	Label string
}

func (c *Continue) GetSpan() source.Span         { return c.Span }
func (c *Continue) String() string               { return fmt.Sprintf("continue %s", c.Label) }
func (c *Continue) Accept(v Visitor) interface{} { return v.VisitContinue(c) }
func (c *Continue) interactionNode()             {}

// Do invokes a named sub-protocol with role arguments. Constraint is an
// optional semantic-version constraint against the protocol registry; the
// empty string accepts any registered version.
type Do struct {
	Span       source.Span
	Protocol   string
	Constraint string
	Args       []Role
}

func (d *Do) GetSpan() source.Span { return d.Span }
func (d *Do) String() string {
	args := make([]string, len(d.Args))
	for i, r := range d.Args {
		args[i] = string(r)
	}
	return fmt.Sprintf("do %s(%s)", d.Protocol, strings.Join(args, ", "))
}
func (d *Do) Accept(v Visitor) interface{} { return v.VisitDo(d) }
func (d *Do) interactionNode()             {}

// Invite is the dynamic-role invitation form of the DMst extension. The
// core admits the vocabulary and lowers it to a call node; no further
// dynamic-session semantics are modeled.
type Invite struct {
	Span    source.Span
	Inviter Role
	Invitee Role
}

func (i *Invite) GetSpan() source.Span         { return i.Span }
func (i *Invite) String() string               { return fmt.Sprintf("invite %s -> %s", i.Inviter, i.Invitee) }
func (i *Invite) Accept(v Visitor) interface{} { return v.VisitInvite(i) }
func (i *Invite) interactionNode()             {}
