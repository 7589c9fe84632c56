// Visitor pattern for AST traversal. Analyses that only need structural
// walks use Inspect; passes that dispatch per node kind implement Visitor.
package ast

// Visitor dispatches on every AST node kind.
type Visitor interface {
	VisitModule(n *Module) interface{}
	VisitProtocol(n *Protocol) interface{}
	VisitBlock(n *Block) interface{}
	VisitTransfer(n *Transfer) interface{}
	VisitChoice(n *Choice) interface{}
	VisitParallel(n *Parallel) interface{}
	VisitRecursion(n *Recursion) interface{}
	VisitContinue(n *Continue) interface{}
	VisitDo(n *Do) interface{}
	VisitInvite(n *Invite) interface{}
}

// Inspect walks the tree rooted at n in source order, calling f for every
// node. If f returns false for a node, its children are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch node := n.(type) {
	case *Module:
		for _, p := range node.Protocols {
			Inspect(p, f)
		}
	case *Protocol:
		Inspect(node.Body, f)
	case *Block:
		for _, i := range node.Interactions {
			Inspect(i, f)
		}
	case *Choice:
		for _, b := range node.Branches {
			Inspect(b, f)
		}
	case *Parallel:
		for _, b := range node.Branches {
			Inspect(b, f)
		}
	case *Recursion:
		Inspect(node.Body, f)
	case *Transfer, *Continue, *Do, *Invite:
		// Leaves.
	}
}

// RolesOf collects every role that appears under n, in first-appearance
// order. Sub-protocol arguments and invite endpoints count as appearances.
func RolesOf(n Node) []Role {
	seen := make(map[Role]bool)
	var out []Role
	add := func(r Role) {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	Inspect(n, func(node Node) bool {
		switch v := node.(type) {
		case *Transfer:
			add(v.From)
			for _, r := range v.To {
				add(r)
			}
		case *Choice:
			add(v.At)
		case *Do:
			for _, r := range v.Args {
				add(r)
			}
		case *Invite:
			add(v.Inviter)
			add(v.Invitee)
		}
		return true
	})
	return out
}

// Involves reports whether role r participates anywhere under n.
func Involves(n Node, r Role) bool {
	for _, got := range RolesOf(n) {
		if got == r {
			return true
		}
	}
	return false
}
