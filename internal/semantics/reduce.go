package semantics

import (
	"fmt"
	"strings"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/cfsm"
)

// Communication is one enabled rendezvous: a sender transition together
// with the matching receive transition of every named receiver. For a
// multicast, all receivers must be ready before the communication counts
// as enabled, and one reduction advances the sender and all of them.
type Communication struct {
	Sender    ast.Role
	Receivers []ast.Role
	Label     string

	senderIdx   int
	senderTo    cfsm.StateID
	receiverIdx []int
	receiverTo  []cfsm.StateID
}

func (c Communication) String() string {
	tos := make([]string, len(c.Receivers))
	for i, r := range c.Receivers {
		tos[i] = string(r)
	}
	return fmt.Sprintf("%s->%s:%s", c.Sender, strings.Join(tos, ","), c.Label)
}

// Enabled scans the context for ready rendezvous pairs. terminal reports
// that every role can stop here; stuck reports that nothing is enabled
// and the context is not terminal, the semantic deadlock signal.
func Enabled(ctx *Context) (comms []Communication, terminal, stuck bool) {
	for i, m := range ctx.machines {
		st := m.State(ctx.states[i])
		for _, tr := range st.Out {
			send, ok := tr.Action.(cfsm.Send)
			if !ok {
				continue
			}
			comm := Communication{
				Sender:    ctx.roles[i],
				Receivers: send.To,
				Label:     send.Msg.Label,
				senderIdx: i,
				senderTo:  tr.To,
			}
			ready := true
			for _, recv := range send.To {
				j, to, ok := matchingReceive(ctx, recv, ctx.roles[i], send.Msg.Label)
				if !ok {
					ready = false
					break
				}
				comm.receiverIdx = append(comm.receiverIdx, j)
				comm.receiverTo = append(comm.receiverTo, to)
			}
			if ready {
				comms = append(comms, comm)
			}
		}
	}
	terminal = ctx.Terminal()
	stuck = len(comms) == 0 && !terminal
	return comms, terminal, stuck
}

// matchingReceive finds role recv's transition receiving label from
// sender at its current state.
func matchingReceive(ctx *Context, recv, sender ast.Role, label string) (idx int, to cfsm.StateID, ok bool) {
	for j, r := range ctx.roles {
		if r != recv {
			continue
		}
		st := ctx.machines[j].State(ctx.states[j])
		for _, tr := range st.Out {
			if rc, isRecv := tr.Action.(cfsm.Receive); isRecv && rc.From == sender && rc.Msg.Label == label {
				return j, tr.To, true
			}
		}
		return j, 0, false
	}
	return -1, 0, false
}

// ReduceWith applies one chosen communication, advancing the sender and
// every receiver and tau-closing all roles. The input context is never
// mutated.
func ReduceWith(ctx *Context, comm Communication) *Context {
	moves := map[int]cfsm.StateID{comm.senderIdx: comm.senderTo}
	for i, idx := range comm.receiverIdx {
		moves[idx] = comm.receiverTo[i]
	}
	return ctx.advance(moves)
}

// Reduce performs one reduction step, picking the first enabled
// communication in role-scan order. Safety and trace properties must hold
// for every legal pick, so the tie-break is deliberately unspecified to
// callers; use ReduceWith to control it.
func Reduce(ctx *Context) (*Context, Communication, bool) {
	comms, _, _ := Enabled(ctx)
	if len(comms) == 0 {
		return ctx, Communication{}, false
	}
	return ReduceWith(ctx, comms[0]), comms[0], true
}

// ExecOutcome classifies how an execution run ended.
type ExecOutcome int

const (
	ExecTerminal ExecOutcome = iota
	ExecStuck
	ExecBudgetExceeded
)

func (o ExecOutcome) String() string {
	switch o {
	case ExecTerminal:
		return "terminal"
	case ExecStuck:
		return "stuck"
	case ExecBudgetExceeded:
		return "budget-exceeded"
	default:
		return "unknown"
	}
}

// Trace is the full run of an execution: every visited context plus the
// communication fired between each consecutive pair.
type Trace struct {
	Contexts []*Context
	Steps    []Communication
	Outcome  ExecOutcome
}

// ExecuteToCompletion reduces until the context is terminal, stuck, or
// maxSteps reductions have fired.
func ExecuteToCompletion(ctx *Context, maxSteps int) Trace {
	tr := Trace{Contexts: []*Context{ctx}}
	for {
		comms, terminal, stuck := Enabled(ctx)
		switch {
		case terminal:
			tr.Outcome = ExecTerminal
			return tr
		case stuck:
			tr.Outcome = ExecStuck
			return tr
		}
		if len(tr.Steps) >= maxSteps {
			tr.Outcome = ExecBudgetExceeded
			return tr
		}
		ctx = ReduceWith(ctx, comms[0])
		tr.Steps = append(tr.Steps, comms[0])
		tr.Contexts = append(tr.Contexts, ctx)
	}
}
