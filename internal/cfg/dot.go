package cfg

import (
	"fmt"
	"strings"
)

// DOT renders the graph in Graphviz dot syntax for visualization.
func (g *CFG) DOT() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", g.Protocol)
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, fontname=\"monospace\"];\n\n")

	for _, n := range g.nodes {
		fmt.Fprintf(&sb, "  n%d [label=%q%s];\n", n.ID, dotLabel(n), dotShape(n))
	}
	sb.WriteString("\n")
	for _, n := range g.nodes {
		for _, e := range n.Out {
			attrs := fmt.Sprintf(" [label=%q]", e.Kind.String())
			if e.Kind == EdgeContinue {
				attrs = fmt.Sprintf(" [label=%q, style=dashed, constraint=false]", e.Kind.String())
			}
			fmt.Fprintf(&sb, "  n%d -> n%d%s;\n", e.From, e.To, attrs)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func dotLabel(n *Node) string {
	switch n.Kind {
	case KindAction:
		return n.Transfer.String()
	case KindBranch:
		return fmt.Sprintf("choice at %s", n.Decider)
	case KindRecHeader:
		return fmt.Sprintf("rec %s", n.Label)
	case KindCall:
		return n.Call.String()
	default:
		return n.Kind.String()
	}
}

func dotShape(n *Node) string {
	switch n.Kind {
	case KindInitial:
		return ", shape=circle"
	case KindTerminal:
		return ", shape=doublecircle"
	case KindBranch, KindMerge:
		return ", shape=diamond"
	case KindFork, KindJoin:
		return ", shape=trapezium"
	default:
		return ""
	}
}
