package semantics

import (
	"testing"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/cfg"
	"github.com/scribal-lang/scribal/internal/cfsm"
	"github.com/scribal-lang/scribal/internal/parser"
)

func initialContext(t *testing.T, src string) *Context {
	t.Helper()
	m, diags := parser.Parse(src, "test.scr")
	for _, d := range diags {
		t.Fatalf("parse error: %s", d)
	}
	g, err := cfg.NewSession().Build(m.Protocols[0])
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	res := cfsm.ProjectAll(g)
	if len(res.Errors) != 0 {
		t.Fatalf("projection errors: %v", res.Errors)
	}
	ctx, err := NewContext(g.Roles, res.Machines)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	return ctx
}

func TestEmptyProtocolIsTerminalAndSafe(t *testing.T) {
	ctx := initialContext(t, `protocol Empty(role A, role B) { }`)

	if !ctx.Terminal() {
		t.Fatalf("empty protocol's initial context must already be terminal: %s", ctx)
	}
	comms, terminal, stuck := Enabled(ctx)
	if len(comms) != 0 || !terminal || stuck {
		t.Fatalf("enabled on empty protocol: comms=%v terminal=%v stuck=%v", comms, terminal, stuck)
	}

	res := (&SafetyChecker{}).Check(ctx)
	if !res.Safe() || res.StatesExplored != 1 {
		t.Fatalf("empty protocol must be safe in 1 state, got %v after %d states", res.Outcome, res.StatesExplored)
	}
}

func TestPingPongExecutesInTwoSteps(t *testing.T) {
	ctx := initialContext(t, `protocol PingPong(role A, role B) {
		A -> B: Ping();
		B -> A: Pong();
	}`)

	tr := ExecuteToCompletion(ctx, 100)
	if tr.Outcome != ExecTerminal {
		t.Fatalf("expected terminal outcome, got %s", tr.Outcome)
	}
	if len(tr.Steps) != 2 {
		t.Fatalf("expected exactly 2 reduction steps, got %d: %v", len(tr.Steps), tr.Steps)
	}
	if tr.Steps[0].Label != "Ping" || tr.Steps[1].Label != "Pong" {
		t.Fatalf("unexpected step order: %v", tr.Steps)
	}
	if !tr.Contexts[len(tr.Contexts)-1].Terminal() {
		t.Fatalf("final context must be terminal for both roles")
	}
}

func TestReduceNeverMutatesInput(t *testing.T) {
	ctx := initialContext(t, `protocol PingPong(role A, role B) {
		A -> B: Ping();
		B -> A: Pong();
	}`)
	before := ctx.Key()
	next, comm, ok := Reduce(ctx)
	if !ok {
		t.Fatalf("expected an enabled communication")
	}
	if ctx.Key() != before {
		t.Fatalf("Reduce mutated its input: %s -> %s", before, ctx.Key())
	}
	if next.Equal(ctx) {
		t.Fatalf("Reduce returned an unchanged context for %s", comm)
	}
}

func TestMulticastRendezvousAdvancesAllReceivers(t *testing.T) {
	ctx := initialContext(t, `protocol Cast(role Hub, role A, role B) {
		Hub -> A, B: Update();
	}`)

	comms, _, _ := Enabled(ctx)
	if len(comms) != 1 {
		t.Fatalf("expected one enabled multicast, got %v", comms)
	}
	if len(comms[0].Receivers) != 2 {
		t.Fatalf("multicast must list both receivers, got %v", comms[0])
	}
	next := ReduceWith(ctx, comms[0])
	if !next.Terminal() {
		t.Fatalf("one multicast reduction must finish the protocol, got %s", next)
	}
}

func TestRecursiveProtocolHitsBudget(t *testing.T) {
	ctx := initialContext(t, `protocol Tick(role A, role B) {
		rec X {
			A -> B: Tick();
			continue X;
		}
	}`)

	tr := ExecuteToCompletion(ctx, 25)
	if tr.Outcome != ExecBudgetExceeded {
		t.Fatalf("an endless loop must exhaust the budget, got %s", tr.Outcome)
	}
	if len(tr.Steps) != 25 {
		t.Fatalf("expected exactly 25 steps, got %d", len(tr.Steps))
	}

	// The reachable state space is still finite, so the safety search
	// terminates well inside its budget.
	res := (&SafetyChecker{Budget: 1000}).Check(ctx)
	if !res.Safe() {
		t.Fatalf("looping ping must be safe, got %v", res.Outcome)
	}
	if res.StatesExplored >= 1000 {
		t.Fatalf("memoized search must terminate early, explored %d", res.StatesExplored)
	}
}

// The OAuth-shaped protocol: the two branches give role a different
// message sets, so no single merged local type covers both, yet every
// reachable configuration matches sends with receives.
const oauthShaped = `protocol OAuth(role s, role c, role a) {
	choice at s {
		s -> c: Offer();
		c -> a: Forward();
		a -> s: Grant();
	} or {
		s -> c: Reject();
		c -> a: Close();
	}
}`

func TestSafetySubsumesSyntacticMerge(t *testing.T) {
	ctx := initialContext(t, oauthShaped)

	res := (&SafetyChecker{}).Check(ctx)
	if !res.Safe() {
		t.Fatalf("OAuth-shaped protocol must be judged safe, got %v (%v)", res.Outcome, res.Violation)
	}
	if res.StatesExplored == 0 {
		t.Fatalf("checker must report how many states it explored")
	}
}

func TestPendingSendWithBusyPeerIsSafe(t *testing.T) {
	// A's send to B is pending while B finishes an unrelated exchange
	// with C: synchronous reduction fires B -> C first, then B turns
	// around and matches A. The pending send must not count as refused.
	ctx := initialContext(t, `protocol Busy(role A, role B, role C) {
		B -> C: X();
		A -> B: M();
	}`)

	res := (&SafetyChecker{}).Check(ctx)
	if !res.Safe() {
		t.Fatalf("busy peer must not be a violation, got %v (%v)", res.Outcome, res.Violation)
	}

	tr := ExecuteToCompletion(ctx, 10)
	if tr.Outcome != ExecTerminal {
		t.Fatalf("expected a terminal run, got %s", tr.Outcome)
	}
}

func TestSafetyViolationDetected(t *testing.T) {
	// Hand-built mismatch: A offers M, B only ever receives N.
	a := cfsm.NewMachine("Broken", "A", 0, []*cfsm.State{
		{ID: 0, Kind: cfsm.StateSend, Out: []cfsm.Transition{
			{Action: cfsm.Send{To: []ast.Role{"B"}, Msg: ast.MessageSig{Label: "M"}}, To: 1},
		}},
		{ID: 1, Kind: cfsm.StateTerminal, Terminal: true},
	})
	b := cfsm.NewMachine("Broken", "B", 0, []*cfsm.State{
		{ID: 0, Kind: cfsm.StateReceive, Out: []cfsm.Transition{
			{Action: cfsm.Receive{From: "A", Msg: ast.MessageSig{Label: "N"}}, To: 1},
		}},
		{ID: 1, Kind: cfsm.StateTerminal, Terminal: true},
	})
	ctx, err := NewContext([]ast.Role{"A", "B"}, map[ast.Role]*cfsm.Machine{"A": a, "B": b})
	if err != nil {
		t.Fatalf("context: %v", err)
	}

	res := (&SafetyChecker{}).Check(ctx)
	if res.Safe() {
		t.Fatalf("label mismatch must be unsafe")
	}
	v := res.Violation
	if v == nil || v.Sender != "A" || v.Receiver != "B" || v.Label != "M" {
		t.Fatalf("violation details wrong: %+v", v)
	}
}

func TestSafetyBudgetExceeded(t *testing.T) {
	ctx := initialContext(t, oauthShaped)
	res := (&SafetyChecker{Budget: 1}).Check(ctx)
	// One state is checked, then the queue still holds successors.
	if res.Outcome != SafetyBudgetExceeded {
		t.Fatalf("expected budget-exceeded, got %v", res.Outcome)
	}
}

func TestCollectStuckContexts(t *testing.T) {
	// A and B both start by sending to each other: nothing is enabled.
	a := cfsm.NewMachine("Cross", "A", 0, []*cfsm.State{
		{ID: 0, Kind: cfsm.StateSend, Out: []cfsm.Transition{
			{Action: cfsm.Send{To: []ast.Role{"B"}, Msg: ast.MessageSig{Label: "M1"}}, To: 1},
		}},
		{ID: 1, Kind: cfsm.StateTerminal, Terminal: true},
	})
	b := cfsm.NewMachine("Cross", "B", 0, []*cfsm.State{
		{ID: 0, Kind: cfsm.StateSend, Out: []cfsm.Transition{
			{Action: cfsm.Send{To: []ast.Role{"A"}, Msg: ast.MessageSig{Label: "M2"}}, To: 1},
		}},
		{ID: 1, Kind: cfsm.StateTerminal, Terminal: true},
	})
	ctx, err := NewContext([]ast.Role{"A", "B"}, map[ast.Role]*cfsm.Machine{"A": a, "B": b})
	if err != nil {
		t.Fatalf("context: %v", err)
	}

	res := (&SafetyChecker{CollectStuck: true}).Check(ctx)
	if res.Safe() {
		t.Fatalf("mutual sends must violate send/receive matching")
	}
	if len(res.StuckContexts) != 1 {
		t.Fatalf("expected the deadlocked context to be collected, got %d", len(res.StuckContexts))
	}
	if v := res.Violation; v == nil || v.Sender != "A" || v.Receiver != "B" || v.Label != "M1" {
		t.Fatalf("violation details wrong: %+v", res.Violation)
	}
}

func TestContextEqualityAndKeys(t *testing.T) {
	first := initialContext(t, `protocol PingPong(role A, role B) {
		A -> B: Ping();
		B -> A: Pong();
	}`)
	second := initialContext(t, `protocol PingPong(role A, role B) {
		A -> B: Ping();
		B -> A: Pong();
	}`)

	if !first.Equal(second) {
		t.Fatalf("structurally identical initial contexts must be equal")
	}
	if first.Key() != second.Key() {
		t.Fatalf("equal contexts must share a key: %q vs %q", first.Key(), second.Key())
	}

	advanced, _, _ := Reduce(first)
	if advanced.Equal(first) || advanced.Key() == first.Key() {
		t.Fatalf("a reduced context must differ from its parent")
	}
}
