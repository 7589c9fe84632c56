package verify

import (
	"fmt"

	"github.com/scribal-lang/scribal/internal/cfg"
	"github.com/scribal-lang/scribal/internal/diag"
)

// CheckChoiceDeterminism verifies that every global choice is decided
// observably: each branch must open with a message from the decider, and
// no two branches may open with the same message, otherwise an external
// observer cannot tell which branch was taken from the first action
// alone.
func CheckChoiceDeterminism(g *cfg.CFG) Result {
	var findings []diag.Diagnostic
	for _, n := range g.Nodes() {
		if n.Kind != cfg.KindBranch {
			continue
		}
		seen := make(map[string]int)
		for i, e := range n.Out {
			firsts := firstActions(g, e.To, n.Join)
			if len(firsts) == 0 {
				findings = append(findings, diag.Errorf("CD003", n.Span,
					"branch %d of choice at %s performs no communication", i, n.Decider))
				continue
			}
			for _, f := range firsts {
				if f.From != n.Decider {
					findings = append(findings, diag.Errorf("CD001", n.Span,
						"branch %d of choice at %s opens with %s, which the decider does not send", i, n.Decider, f))
				}
				sig := f.String()
				if prev, dup := seen[sig]; dup && prev != i {
					findings = append(findings, diag.Errorf("CD002", n.Span,
						"branches %d and %d of choice at %s are indistinguishable: both open with %s", prev, i, n.Decider, f))
				} else {
					seen[sig] = i
				}
			}
		}

	}
	return result("choice-determinism", g, findings, Fail)
}

// CheckMulticast verifies that every use of a message label agrees on
// payload shape, so each receiver of a multicast observes the same typed
// message wherever the label appears. Divergence is a warning, not an
// error.
func CheckMulticast(g *cfg.CFG) Result {
	var findings []diag.Diagnostic
	shapes := make(map[string]string)
	origins := make(map[string]*cfg.Node)
	for _, n := range g.Nodes() {
		if n.Kind != cfg.KindAction {
			continue
		}
		label := n.Transfer.Msg.Label
		shape := payloadShape(n.Transfer)
		if prev, ok := shapes[label]; ok {
			if prev != shape {
				findings = append(findings, diag.Warningf("MC001", n.Span,
					"label %s used with diverging signatures: %s (first at node #%d) vs %s",
					label, prev, origins[label].ID, shape))
			}
			continue
		}
		shapes[label] = shape
		origins[label] = n
	}
	return result("multicast-consistency", g, findings, Warn)
}

func payloadShape(t *cfg.Transfer) string {
	return fmt.Sprintf("%s/%d-receivers", t.Msg, len(t.To))
}
