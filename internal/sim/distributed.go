// Package sim provides the two debugging views over a verified protocol:
// a distributed simulator running projected machines over per-channel
// FIFO queues, and a CFG-level simulator walking the global graph with a
// replayable snapshot history. Both model concurrency as scheduled
// interleaving on one goroutine; nothing here executes roles in parallel.
package sim

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/cfg"
	"github.com/scribal-lang/scribal/internal/cfsm"
)

// Strategy selects which ready role advances on each tick.
type Strategy int

const (
	RoundRobin Strategy = iota
	RandomOrder
	FixedFirst
)

func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "round-robin"
	case RandomOrder:
		return "random"
	case FixedFirst:
		return "fixed"
	default:
		return "unknown"
	}
}

// ParseStrategy reads a strategy name as used on the command line.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "round-robin", "":
		return RoundRobin, nil
	case "random":
		return RandomOrder, nil
	case "fixed":
		return FixedFirst, nil
	default:
		return RoundRobin, fmt.Errorf("unknown scheduling strategy %q", name)
	}
}

// EventKind classifies one trace entry.
type EventKind int

const (
	EventSend EventKind = iota
	EventReceive
	EventState
	EventCall
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSend:
		return "send"
	case EventReceive:
		return "receive"
	case EventState:
		return "state"
	case EventCall:
		return "call"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one entry of a simulation trace.
type Event struct {
	Seq    int          `json:"seq"`
	Role   ast.Role     `json:"role"`
	Kind   EventKind    `json:"kind"`
	Detail string       `json:"detail"`
	State  cfsm.StateID `json:"state"`
}

func (e Event) String() string {
	return fmt.Sprintf("[%03d] %s %s: %s", e.Seq, e.Role, e.Kind, e.Detail)
}

// RunOutcome classifies how a simulation run ended.
type RunOutcome int

const (
	RunSuccess RunOutcome = iota
	RunDeadlock
	RunBudgetExceeded
)

func (o RunOutcome) String() string {
	switch o {
	case RunSuccess:
		return "success"
	case RunDeadlock:
		return "deadlock"
	case RunBudgetExceeded:
		return "budget-exceeded"
	default:
		return "unknown"
	}
}

// RunResult is the outcome of one distributed run plus its full trace.
type RunResult struct {
	ID      string     `json:"id"` // unique per run, for cross-referencing traces
	Outcome RunOutcome `json:"outcome"`
	Steps   int        `json:"steps"`
	Events  []Event    `json:"events"`
}

// EventsFor filters the trace down to one role.
func (r RunResult) EventsFor(role ast.Role) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Role == role {
			out = append(out, e)
		}
	}
	return out
}

// message is one queued payload.
type message struct {
	label string
}

// Simulator runs projected machines over asynchronous per-channel FIFO
// queues: sends enqueue without blocking, receives block until their
// channel's head carries the expected label.
type Simulator struct {
	roles    []ast.Role
	machines []*cfsm.Machine
	states   []cfsm.StateID
	queues   map[cfg.Channel][]message

	strategy Strategy
	rng      *rand.Rand
	cursor   int // round-robin position

	seq    int
	events []Event
}

// SimOption configures a simulator.
type SimOption func(*Simulator)

// WithStrategy selects the scheduling strategy.
func WithStrategy(s Strategy) SimOption {
	return func(sim *Simulator) { sim.strategy = s }
}

// WithSeed fixes the random scheduler's seed for reproducible runs.
func WithSeed(seed int64) SimOption {
	return func(sim *Simulator) { sim.rng = rand.New(rand.NewSource(seed)) }
}

// NewSimulator prepares a run over one machine per role.
func NewSimulator(order []ast.Role, machines map[ast.Role]*cfsm.Machine, opts ...SimOption) (*Simulator, error) {
	sim := &Simulator{
		roles:  append([]ast.Role(nil), order...),
		queues: make(map[cfg.Channel][]message),
		rng:    rand.New(rand.NewSource(1)),
	}
	for _, r := range order {
		m, ok := machines[r]
		if !ok {
			return nil, fmt.Errorf("simulator: no machine for role %s", r)
		}
		sim.machines = append(sim.machines, m)
		sim.states = append(sim.states, m.Initial)
	}
	for _, opt := range opts {
		opt(sim)
	}
	return sim, nil
}

// Run drives the simulation until every role is terminal, no role can
// advance (deadlock), or maxSteps ticks have passed.
func (sim *Simulator) Run(maxSteps int) RunResult {
	res := RunResult{ID: uuid.NewString()}
	for res.Steps < maxSteps {
		ready := sim.readyRoles()
		if len(ready) == 0 {
			if sim.allTerminal() {
				res.Outcome = RunSuccess
			} else {
				res.Outcome = RunDeadlock
				sim.reportBlocked()
			}
			res.Events = sim.events
			return res
		}
		sim.tick(sim.pick(ready))
		res.Steps++
	}
	res.Outcome = RunBudgetExceeded
	res.Events = sim.events
	return res
}

// pick applies the scheduling strategy to the ready set.
func (sim *Simulator) pick(ready []int) int {
	switch sim.strategy {
	case RandomOrder:
		return ready[sim.rng.Intn(len(ready))]
	case FixedFirst:
		return ready[0]
	default: // round-robin
		for _, idx := range ready {
			if idx >= sim.cursor {
				sim.cursor = idx + 1
				if sim.cursor >= len(sim.roles) {
					sim.cursor = 0
				}
				return idx
			}
		}
		sim.cursor = ready[0] + 1
		return ready[0]
	}
}

// readyRoles lists the roles with at least one fireable transition.
func (sim *Simulator) readyRoles() []int {
	var out []int
	for i := range sim.roles {
		if _, ok := sim.fireable(i); ok {
			out = append(out, i)
		}
	}
	return out
}

// fireable returns a transition role i can take right now: sends and
// silent moves always fire; a receive fires only when its channel's head
// matches.
func (sim *Simulator) fireable(i int) (cfsm.Transition, bool) {
	st := sim.machines[i].State(sim.states[i])
	var candidates []cfsm.Transition
	for _, tr := range st.Out {
		switch act := tr.Action.(type) {
		case cfsm.Receive:
			ch := cfg.Channel{From: act.From, To: sim.roles[i]}
			q := sim.queues[ch]
			if len(q) > 0 && q[0].label == act.Msg.Label {
				candidates = append(candidates, tr)
			}
		default:
			candidates = append(candidates, tr)
		}
	}
	if len(candidates) == 0 {
		return cfsm.Transition{}, false
	}
	if sim.strategy == RandomOrder && len(candidates) > 1 {
		return candidates[sim.rng.Intn(len(candidates))], true
	}
	return candidates[0], true
}

// tick fires one transition of role i.
func (sim *Simulator) tick(i int) {
	tr, ok := sim.fireable(i)
	if !ok {
		return
	}
	role := sim.roles[i]
	switch act := tr.Action.(type) {
	case cfsm.Send:
		for _, to := range act.To {
			ch := cfg.Channel{From: role, To: to}
			sim.queues[ch] = append(sim.queues[ch], message{label: act.Msg.Label})
		}
		sim.emit(i, EventSend, fmt.Sprintf("%s to %s", act.Msg.Label, joinRoles(act.To)))
	case cfsm.Receive:
		ch := cfg.Channel{From: act.From, To: role}
		sim.queues[ch] = sim.queues[ch][1:]
		sim.emit(i, EventReceive, fmt.Sprintf("%s from %s", act.Msg.Label, act.From))
	case cfsm.Call:
		sim.emit(i, EventCall, act.String())
	default:
		// Silent moves still change state; fall through to the state event.
	}
	sim.states[i] = tr.To
	sim.emit(i, EventState, fmt.Sprintf("now at s%d", tr.To))
}

func (sim *Simulator) allTerminal() bool {
	for i, m := range sim.machines {
		if !m.State(sim.states[i]).Terminal {
			return false
		}
	}
	return true
}

// reportBlocked adds an error event for every non-terminal role, naming
// the message it is stuck waiting for.
func (sim *Simulator) reportBlocked() {
	for i, m := range sim.machines {
		st := m.State(sim.states[i])
		if st.Terminal {
			continue
		}
		detail := "blocked with no fireable transition"
		for _, tr := range st.Out {
			if rc, ok := tr.Action.(cfsm.Receive); ok {
				detail = fmt.Sprintf("message not ready: %s from %s", rc.Msg.Label, rc.From)
				break
			}
		}
		sim.emit(i, EventError, detail)
	}
}

func (sim *Simulator) emit(i int, kind EventKind, detail string) {
	sim.events = append(sim.events, Event{
		Seq:    sim.seq,
		Role:   sim.roles[i],
		Kind:   kind,
		Detail: detail,
		State:  sim.states[i],
	})
	sim.seq++
}

func joinRoles(rs []ast.Role) string {
	out := ""
	for i, r := range rs {
		if i > 0 {
			out += ","
		}
		out += string(r)
	}
	return out
}
