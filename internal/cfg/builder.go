package cfg

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/registry"
	"github.com/scribal-lang/scribal/internal/source"
)

// Sentinel build errors. Builds fail fatally (tier 1): a CFG is either
// complete or absent, never partial.
var (
	// ErrUnknownLabel reports a continue whose label has no enclosing rec.
	ErrUnknownLabel = errors.New("continue to unknown recursion label")
	// ErrUndeclaredRole reports a role reference outside the declared set.
	ErrUndeclaredRole = errors.New("undeclared role")
	// ErrArityMismatch reports a do whose argument count does not match
	// the callee's declared role count.
	ErrArityMismatch = errors.New("sub-protocol role arity mismatch")
)

// DefaultInlineDepth bounds recursive sub-protocol inlining.
const DefaultInlineDepth = 8

// Session owns the node-id counter shared by every CFG it builds. Two
// graphs built through the same session never share an id, which keeps
// cross-protocol references unambiguous. Sessions are safe for concurrent
// Build calls.
type Session struct {
	nextID atomic.Uint64
}

// NewSession creates a session whose first allocated id is 1.
func NewSession() *Session {
	return &Session{}
}

// Option configures a single Build call.
type Option func(*builder)

// WithRegistry lets the builder resolve and inline `do` targets. Without
// a registry every `do` is kept as an opaque call node.
func WithRegistry(r *registry.Registry) Option {
	return func(b *builder) { b.reg = r }
}

// WithInlineDepth overrides the sub-protocol inline depth limit.
func WithInlineDepth(n int) Option {
	return func(b *builder) { b.maxDepth = n }
}

// Build lowers one protocol declaration into its control-flow graph.
func (s *Session) Build(decl *ast.Protocol, opts ...Option) (*CFG, error) {
	if decl == nil {
		return nil, fmt.Errorf("build: nil protocol declaration")
	}
	b := &builder{
		session:  s,
		maxDepth: DefaultInlineDepth,
		g: &CFG{
			Protocol: decl.Name,
			Roles:    append([]ast.Role(nil), decl.Roles...),
			index:    make(map[NodeID]int),
		},
	}
	for _, opt := range opts {
		opt(b)
	}

	initial := b.node(KindInitial, decl.GetSpan())
	terminal := b.node(KindTerminal, decl.GetSpan())
	entry, err := b.buildSeq(decl.Body.Interactions, link{to: terminal.ID})
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", decl.Name, err)
	}
	b.connect(initial, entry, EdgeSequence)

	b.g.Entry = initial.ID
	b.g.Exit = terminal.ID
	return b.g, nil
}

// recEntry maps one in-scope recursion label to its header node.
type recEntry struct {
	label  string
	header NodeID
}

// link is a pending connection to an already-allocated node. cont marks a
// back-edge produced by a continue; it overrides the edge kind the source
// node would otherwise use.
type link struct {
	to   NodeID
	cont bool
}

type builder struct {
	session  *Session
	g        *CFG
	reg      *registry.Registry
	maxDepth int

	recs  []recEntry
	subst map[ast.Role]ast.Role // nil outside inlined bodies
	depth int
}

func (b *builder) node(kind NodeKind, span source.Span) *Node {
	n := &Node{
		ID:   NodeID(b.session.nextID.Add(1)),
		Kind: kind,
		Span: span,
	}
	b.g.index[n.ID] = len(b.g.nodes)
	b.g.nodes = append(b.g.nodes, n)
	return n
}

func (b *builder) connect(from *Node, to link, kind EdgeKind) {
	if to.cont {
		kind = EdgeContinue
	}
	from.Out = append(from.Out, Edge{From: from.ID, To: to.to, Kind: kind})
}

// role resolves a role reference through the current inline substitution
// and checks it against the declared role set.
func (b *builder) role(r ast.Role, span source.Span) (ast.Role, error) {
	if b.subst != nil {
		mapped, ok := b.subst[r]
		if !ok {
			return "", fmt.Errorf("%s: %w: %s is not a parameter of the inlined sub-protocol", span, ErrUndeclaredRole, r)
		}
		r = mapped
	}
	if !b.g.HasRole(r) {
		return "", fmt.Errorf("%s: %w: %s", span, ErrUndeclaredRole, r)
	}
	return r, nil
}

// buildSeq lowers an interaction sequence, linking its last reachable
// interaction to next. It returns the link predecessors should use to
// enter the sequence.
func (b *builder) buildSeq(items []ast.Interaction, next link) (link, error) {
	if len(items) == 0 {
		return next, nil
	}
	head, tail := items[0], items[1:]

	// A continue ends the sequence: anything after it is unreachable and
	// contributes no nodes.
	if c, ok := head.(*ast.Continue); ok {
		for i := len(b.recs) - 1; i >= 0; i-- {
			if b.recs[i].label == c.Label {
				return link{to: b.recs[i].header, cont: true}, nil
			}
		}
		return link{}, fmt.Errorf("%s: %w: %s", c.GetSpan(), ErrUnknownLabel, c.Label)
	}

	switch it := head.(type) {
	case *ast.Transfer:
		n := b.node(KindAction, it.GetSpan())
		from, err := b.role(it.From, it.GetSpan())
		if err != nil {
			return link{}, err
		}
		tos := make([]ast.Role, len(it.To))
		for i, r := range it.To {
			if tos[i], err = b.role(r, it.GetSpan()); err != nil {
				return link{}, err
			}
		}
		n.Transfer = &Transfer{From: from, To: tos, Msg: it.Msg}
		rest, err := b.buildSeq(tail, next)
		if err != nil {
			return link{}, err
		}
		b.connect(n, rest, EdgeMessage)
		return link{to: n.ID}, nil

	case *ast.Choice:
		decider, err := b.role(it.At, it.GetSpan())
		if err != nil {
			return link{}, err
		}
		branch := b.node(KindBranch, it.GetSpan())
		branch.Decider = decider
		merge := b.node(KindMerge, it.GetSpan())
		branch.Join = merge.ID
		for _, blk := range it.Branches {
			entry, err := b.buildSeq(blk.Interactions, link{to: merge.ID})
			if err != nil {
				return link{}, err
			}
			b.connect(branch, entry, EdgeBranch)
		}
		rest, err := b.buildSeq(tail, next)
		if err != nil {
			return link{}, err
		}
		b.connect(merge, rest, EdgeSequence)
		return link{to: branch.ID}, nil

	case *ast.Parallel:
		fork := b.node(KindFork, it.GetSpan())
		join := b.node(KindJoin, it.GetSpan())
		join.JoinArity = len(it.Branches)
		fork.Join = join.ID
		for _, blk := range it.Branches {
			entry, err := b.buildSeq(blk.Interactions, link{to: join.ID})
			if err != nil {
				return link{}, err
			}
			b.connect(fork, entry, EdgeFork)
		}
		rest, err := b.buildSeq(tail, next)
		if err != nil {
			return link{}, err
		}
		b.connect(join, rest, EdgeSequence)
		return link{to: fork.ID}, nil

	case *ast.Recursion:
		header := b.node(KindRecHeader, it.GetSpan())
		header.Label = it.Label
		rest, err := b.buildSeq(tail, next)
		if err != nil {
			return link{}, err
		}
		b.recs = append(b.recs, recEntry{label: it.Label, header: header.ID})
		body, err := b.buildSeq(it.Body.Interactions, rest)
		b.recs = b.recs[:len(b.recs)-1]
		if err != nil {
			return link{}, err
		}
		b.connect(header, body, EdgeSequence)
		return link{to: header.ID}, nil

	case *ast.Do:
		return b.buildDo(it, tail, next)

	case *ast.Invite:
		inviter, err := b.role(it.Inviter, it.GetSpan())
		if err != nil {
			return link{}, err
		}
		// The invitee is a dynamic role; it is deliberately not checked
		// against the declared set.
		n := b.node(KindCall, it.GetSpan())
		n.Call = &CallInfo{Args: []ast.Role{inviter, it.Invitee}, Dynamic: true}
		rest, err := b.buildSeq(tail, next)
		if err != nil {
			return link{}, err
		}
		b.connect(n, rest, EdgeSequence)
		return link{to: n.ID}, nil

	default:
		return link{}, fmt.Errorf("%s: unsupported interaction %T", head.GetSpan(), head)
	}
}

// buildDo lowers a sub-protocol invocation. When a registry resolves the
// target and the inline depth allows, the callee body is rebuilt in the
// caller's graph with its roles substituted by the arguments; otherwise
// the invocation stays an opaque call node so downstream components still
// see the standard node vocabulary.
func (b *builder) buildDo(it *ast.Do, tail []ast.Interaction, next link) (link, error) {
	args := make([]ast.Role, len(it.Args))
	for i, r := range it.Args {
		var err error
		if args[i], err = b.role(r, it.GetSpan()); err != nil {
			return link{}, err
		}
	}

	if b.reg != nil && b.depth < b.maxDepth {
		if entry, err := b.reg.Resolve(it.Protocol, it.Constraint); err == nil {
			callee := entry.Decl
			if len(callee.Roles) != len(args) {
				return link{}, fmt.Errorf("%s: do %s: %w: have %d arguments, callee declares %d roles",
					it.GetSpan(), it.Protocol, ErrArityMismatch, len(args), len(callee.Roles))
			}
			rest, err := b.buildSeq(tail, next)
			if err != nil {
				return link{}, err
			}

			subst := make(map[ast.Role]ast.Role, len(args))
			for i, param := range callee.Roles {
				subst[param] = args[i]
			}
			// Callee recursion labels are scoped to the callee body; a
			// continue inside it must never capture a caller label.
			savedRecs, savedSubst := b.recs, b.subst
			b.recs, b.subst = nil, subst
			b.depth++
			inlined, err := b.buildSeq(callee.Body.Interactions, rest)
			b.depth--
			b.recs, b.subst = savedRecs, savedSubst
			if err != nil {
				return link{}, fmt.Errorf("inlining %s: %w", it.Protocol, err)
			}
			return inlined, nil
		}
	}

	n := b.node(KindCall, it.GetSpan())
	n.Call = &CallInfo{Target: it.Protocol, Constraint: it.Constraint, Args: args}
	rest, err := b.buildSeq(tail, next)
	if err != nil {
		return link{}, err
	}
	b.connect(n, rest, EdgeSequence)
	return link{to: n.ID}, nil
}
