package semantics

import (
	"fmt"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/cfsm"
)

// DefaultBudget bounds reachability searches; recursive protocols have
// finite state spaces but the bound keeps a pathological product from
// running away.
const DefaultBudget = 100000

// SafetyOutcome classifies a safety check run.
type SafetyOutcome int

const (
	SafetySafe SafetyOutcome = iota
	SafetyViolation
	SafetyBudgetExceeded
)

func (o SafetyOutcome) String() string {
	switch o {
	case SafetySafe:
		return "safe"
	case SafetyViolation:
		return "violation"
	case SafetyBudgetExceeded:
		return "budget-exceeded"
	default:
		return "unknown"
	}
}

// Violation pins down the first unsafe configuration found: either a
// send whose named peer is receiving from the sender but refuses the
// label, or a non-terminal context with nothing enabled at all.
type Violation struct {
	Sender   ast.Role
	Receiver ast.Role
	Label    string
	Context  *Context
}

func (v *Violation) Error() string {
	if v.Sender == "" {
		return fmt.Sprintf("unsafe: no communication enabled in non-terminal %s", v.Context)
	}
	return fmt.Sprintf("unsafe: %s sends %s but %s offers no matching receive in %s",
		v.Sender, v.Label, v.Receiver, v.Context)
}

// SafetyResult is the verdict of one safety check.
type SafetyResult struct {
	Outcome        SafetyOutcome
	Violation      *Violation
	StatesExplored int
	StuckContexts  []*Context
}

// Safe reports whether the whole reachable set satisfied the send/receive
// matching rule.
func (r SafetyResult) Safe() bool { return r.Outcome == SafetySafe }

// SafetyChecker explores every context reachable from an initial one.
type SafetyChecker struct {
	// Budget caps the number of contexts visited; <= 0 uses DefaultBudget.
	Budget int
	// CollectStuck also records the stuck (deadlocked) context that ends
	// the search, used by the semantic deadlock search.
	CollectStuck bool
}

// Check runs a breadth-first search over the reachable contexts and
// verifies, at every one of them, that no pending send is refused by its
// peer and that non-terminal contexts keep at least one communication
// enabled. The first violation stops the search.
func (sc *SafetyChecker) Check(ctx *Context) SafetyResult {
	budget := sc.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	res := SafetyResult{}
	visited := map[string]bool{ctx.Key(): true}
	queue := []*Context{ctx}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if res.StatesExplored >= budget {
			res.Outcome = SafetyBudgetExceeded
			return res
		}
		res.StatesExplored++

		if v := sendReceiveMismatch(cur); v != nil {
			res.Outcome = SafetyViolation
			res.Violation = v
			return res
		}

		comms, _, stuck := Enabled(cur)
		if stuck {
			if sc.CollectStuck {
				res.StuckContexts = append(res.StuckContexts, cur)
			}
			res.Outcome = SafetyViolation
			res.Violation = stuckViolation(cur)
			return res
		}
		for _, comm := range comms {
			next := ReduceWith(cur, comm)
			key := next.Key()
			if visited[key] {
				continue
			}
			visited[key] = true
			queue = append(queue, next)
		}
	}

	res.Outcome = SafetySafe
	return res
}

// sendReceiveMismatch checks the rendezvous rule at one context: a send
// is unsafe only when its named peer currently receives from the sender
// yet offers no transition for the label. A peer busy with an earlier,
// independently enabled exchange is not a mismatch here; if that exchange
// never frees the peer, the search reaches a stuck context and reports it
// there.
func sendReceiveMismatch(ctx *Context) *Violation {
	for i, m := range ctx.machines {
		st := m.State(ctx.states[i])
		for _, tr := range st.Out {
			send, ok := tr.Action.(cfsm.Send)
			if !ok {
				continue
			}
			for _, recv := range send.To {
				if refusesLabel(ctx, recv, ctx.roles[i], send.Msg.Label) {
					return &Violation{
						Sender:   ctx.roles[i],
						Receiver: recv,
						Label:    send.Msg.Label,
						Context:  ctx,
					}
				}
			}
		}
	}
	return nil
}

// refusesLabel reports whether recv's current state expects a message from
// sender but accepts no transition for the given label.
func refusesLabel(ctx *Context, recv, sender ast.Role, label string) bool {
	for j, r := range ctx.roles {
		if r != recv {
			continue
		}
		expectsSender := false
		for _, tr := range ctx.machines[j].State(ctx.states[j]).Out {
			rc, ok := tr.Action.(cfsm.Receive)
			if !ok || rc.From != sender {
				continue
			}
			if rc.Msg.Label == label {
				return false
			}
			expectsSender = true
		}
		return expectsSender
	}
	return false
}

// stuckViolation describes a non-terminal context where no communication
// is enabled, naming the first pending send when one exists.
func stuckViolation(ctx *Context) *Violation {
	for i, m := range ctx.machines {
		for _, tr := range m.State(ctx.states[i]).Out {
			if send, ok := tr.Action.(cfsm.Send); ok {
				return &Violation{
					Sender:   ctx.roles[i],
					Receiver: send.To[0],
					Label:    send.Msg.Label,
					Context:  ctx,
				}
			}
		}
	}
	return &Violation{Context: ctx}
}
