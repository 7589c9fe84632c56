package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/scribal-lang/scribal/internal/cfg"
)

// ErrAlreadyCompleted is returned by Step once every token has reached
// the terminal node.
var ErrAlreadyCompleted = errors.New("simulation already completed")

// ErrNoStep is returned by StepBack at the initial snapshot.
var ErrNoStep = errors.New("no step to undo")

// Resolver decides which branch a choice token takes.
type Resolver interface {
	Resolve(branch *cfg.Node, options []cfg.Edge) int
}

// FirstBranch always takes the first branch.
type FirstBranch struct{}

func (FirstBranch) Resolve(_ *cfg.Node, _ []cfg.Edge) int { return 0 }

// RandomBranch picks branches with a seeded generator.
type RandomBranch struct {
	Rng *rand.Rand
}

func (r RandomBranch) Resolve(_ *cfg.Node, options []cfg.Edge) int {
	return r.Rng.Intn(len(options))
}

// ManualBranch asks the host for every decision, which is how an
// interactive debugger drives the walker.
type ManualBranch struct {
	Choose func(branch *cfg.Node, options []cfg.Edge) int
}

func (m ManualBranch) Resolve(branch *cfg.Node, options []cfg.Edge) int {
	return m.Choose(branch, options)
}

// Snapshot is one immutable step of the walk: the multiset of node ids
// holding a token. Keeping every snapshot is what makes step-back free.
type Snapshot struct {
	Step   int
	Tokens []cfg.NodeID
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{Step: s.Step, Tokens: append([]cfg.NodeID(nil), s.Tokens...)}
}

// Walker steps tokens through the global graph for a single coherent
// view of the protocol, independent of any per-role machine.
type Walker struct {
	g        *cfg.CFG
	resolver Resolver
	history  []Snapshot
}

// NewWalker starts a walk at the graph entry. A nil resolver defaults to
// FirstBranch.
func NewWalker(g *cfg.CFG, resolver Resolver) *Walker {
	if resolver == nil {
		resolver = FirstBranch{}
	}
	return &Walker{
		g:        g,
		resolver: resolver,
		history:  []Snapshot{{Tokens: []cfg.NodeID{g.Entry}}},
	}
}

// Current returns the latest snapshot.
func (w *Walker) Current() Snapshot { return w.history[len(w.history)-1].clone() }

// History returns every snapshot so far, oldest first.
func (w *Walker) History() []Snapshot {
	out := make([]Snapshot, len(w.history))
	for i, s := range w.history {
		out[i] = s.clone()
	}
	return out
}

// Completed reports whether no token can move anymore.
func (w *Walker) Completed() bool {
	cur := w.history[len(w.history)-1]
	for _, id := range cur.Tokens {
		if w.g.Node(id).Kind != cfg.KindTerminal {
			return false
		}
	}
	return true
}

// Step advances the first movable token and returns the event describing
// what happened. Once completed it returns ErrAlreadyCompleted.
func (w *Walker) Step() (Event, error) {
	if w.Completed() {
		return Event{}, ErrAlreadyCompleted
	}
	cur := w.history[len(w.history)-1].clone()
	cur.Step++

	// Deterministic token order keeps replays stable.
	sort.Slice(cur.Tokens, func(i, j int) bool { return cur.Tokens[i] < cur.Tokens[j] })

	for _, id := range cur.Tokens {
		n := w.g.Node(id)
		ev, next, moved := w.advance(n, cur)
		if !moved {
			continue
		}
		w.history = append(w.history, next)
		ev.Seq = cur.Step
		return ev, nil
	}
	return Event{}, fmt.Errorf("no token can move in %v", cur.Tokens)
}

// advance tries to move the token at node n, producing the successor
// snapshot.
func (w *Walker) advance(n *cfg.Node, cur Snapshot) (Event, Snapshot, bool) {
	switch n.Kind {
	case cfg.KindTerminal:
		return Event{}, Snapshot{}, false

	case cfg.KindJoin:
		// A join fires only when every branch has delivered its token.
		if countTokens(cur.Tokens, n.ID) < n.JoinArity {
			return Event{}, Snapshot{}, false
		}
		next := removeAll(cur, n.ID)
		next.Tokens = append(next.Tokens, n.Out[0].To)
		return Event{Kind: EventState, Detail: fmt.Sprintf("join #%d fired", n.ID)}, next, true

	case cfg.KindFork:
		next := removeOne(cur, n.ID)
		for _, e := range n.Out {
			next.Tokens = append(next.Tokens, e.To)
		}
		return Event{Kind: EventState, Detail: fmt.Sprintf("fork #%d split %d ways", n.ID, len(n.Out))}, next, true

	case cfg.KindBranch:
		idx := w.resolver.Resolve(n, n.Out)
		if idx < 0 || idx >= len(n.Out) {
			idx = 0
		}
		next := removeOne(cur, n.ID)
		next.Tokens = append(next.Tokens, n.Out[idx].To)
		return Event{Kind: EventState, Detail: fmt.Sprintf("choice at %s took branch %d", n.Decider, idx)}, next, true

	case cfg.KindAction:
		next := removeOne(cur, n.ID)
		next.Tokens = append(next.Tokens, n.Out[0].To)
		return Event{Role: n.Transfer.From, Kind: EventSend, Detail: n.Transfer.String()}, next, true

	case cfg.KindCall:
		next := removeOne(cur, n.ID)
		next.Tokens = append(next.Tokens, n.Out[0].To)
		return Event{Kind: EventCall, Detail: n.Call.String()}, next, true

	default: // initial, merge, recursion header
		next := removeOne(cur, n.ID)
		next.Tokens = append(next.Tokens, n.Out[0].To)
		return Event{Kind: EventState, Detail: fmt.Sprintf("passed %s", n)}, next, true
	}
}

// StepBack rewinds the walk one snapshot; past states are never mutated,
// so stepping forward again replays cleanly.
func (w *Walker) StepBack() error {
	if len(w.history) <= 1 {
		return ErrNoStep
	}
	w.history = w.history[:len(w.history)-1]
	return nil
}

// Reset rewinds to the initial snapshot.
func (w *Walker) Reset() {
	w.history = w.history[:1]
}

func countTokens(tokens []cfg.NodeID, id cfg.NodeID) int {
	n := 0
	for _, t := range tokens {
		if t == id {
			n++
		}
	}
	return n
}

func removeOne(s Snapshot, id cfg.NodeID) Snapshot {
	next := Snapshot{Step: s.Step}
	removed := false
	for _, t := range s.Tokens {
		if !removed && t == id {
			removed = true
			continue
		}
		next.Tokens = append(next.Tokens, t)
	}
	return next
}

func removeAll(s Snapshot, id cfg.NodeID) Snapshot {
	next := Snapshot{Step: s.Step}
	for _, t := range s.Tokens {
		if t != id {
			next.Tokens = append(next.Tokens, t)
		}
	}
	return next
}
