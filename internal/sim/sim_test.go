package sim

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/cfg"
	"github.com/scribal-lang/scribal/internal/cfsm"
	"github.com/scribal-lang/scribal/internal/parser"
)

func buildCFG(t *testing.T, src string) *cfg.CFG {
	t.Helper()
	m, diags := parser.Parse(src, "test.scr")
	for _, d := range diags {
		t.Fatalf("parse error: %s", d)
	}
	g, err := cfg.NewSession().Build(m.Protocols[0])
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return g
}

func machinesFor(t *testing.T, g *cfg.CFG) map[ast.Role]*cfsm.Machine {
	t.Helper()
	res := cfsm.ProjectAll(g)
	if len(res.Errors) != 0 {
		t.Fatalf("projection errors: %v", res.Errors)
	}
	return res.Machines
}

const pingPong = `protocol PingPong(role A, role B) {
	A -> B: Ping();
	B -> A: Pong();
}`

func TestDistributedRunSucceeds(t *testing.T) {
	g := buildCFG(t, pingPong)
	sim, err := NewSimulator(g.Roles, machinesFor(t, g))
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}

	res := sim.Run(100)
	if res.Outcome != RunSuccess {
		t.Fatalf("expected success, got %s\nevents:\n%v", res.Outcome, res.Events)
	}
	if res.ID == "" {
		t.Fatalf("run must carry an id")
	}

	var sends, receives int
	for _, e := range res.Events {
		switch e.Kind {
		case EventSend:
			sends++
		case EventReceive:
			receives++
		}
	}
	if sends != 2 || receives != 2 {
		t.Fatalf("expected 2 sends and 2 receives, got %d/%d", sends, receives)
	}

	aEvents := res.EventsFor("A")
	if len(aEvents) == 0 {
		t.Fatalf("role A must have a trace")
	}
	for _, e := range aEvents {
		if e.Role != "A" {
			t.Fatalf("EventsFor leaked role %s", e.Role)
		}
	}
}

func TestDistributedFIFOPerChannel(t *testing.T) {
	// Two messages on the same channel must arrive in send order.
	g := buildCFG(t, `protocol Two(role A, role B) {
		A -> B: First();
		A -> B: Second();
	}`)
	sim, err := NewSimulator(g.Roles, machinesFor(t, g))
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}

	res := sim.Run(100)
	if res.Outcome != RunSuccess {
		t.Fatalf("expected success, got %s", res.Outcome)
	}
	var order []string
	for _, e := range res.EventsFor("B") {
		if e.Kind == EventReceive {
			order = append(order, e.Detail)
		}
	}
	if len(order) != 2 || order[0] != "First from A" || order[1] != "Second from A" {
		t.Fatalf("FIFO order violated: %v", order)
	}
}

func TestDistributedDeadlockReported(t *testing.T) {
	// B waits for a message nobody sends.
	a := cfsm.NewMachine("Stuck", "A", 0, []*cfsm.State{
		{ID: 0, Kind: cfsm.StateTerminal, Terminal: true},
	})
	b := cfsm.NewMachine("Stuck", "B", 0, []*cfsm.State{
		{ID: 0, Kind: cfsm.StateReceive, Out: []cfsm.Transition{
			{Action: cfsm.Receive{From: "A", Msg: ast.MessageSig{Label: "Never"}}, To: 1},
		}},
		{ID: 1, Kind: cfsm.StateTerminal, Terminal: true},
	})
	sim, err := NewSimulator([]ast.Role{"A", "B"},
		map[ast.Role]*cfsm.Machine{"A": a, "B": b})
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}

	res := sim.Run(100)
	if res.Outcome != RunDeadlock {
		t.Fatalf("expected deadlock, got %s", res.Outcome)
	}
	found := false
	for _, e := range res.EventsFor("B") {
		if e.Kind == EventError {
			found = true
		}
	}
	if !found {
		t.Fatalf("the blocked role must carry an error event: %v", res.Events)
	}
}

func TestDistributedBudget(t *testing.T) {
	g := buildCFG(t, `protocol Loop(role A, role B) {
		rec X {
			A -> B: Tick();
			continue X;
		}
	}`)
	sim, err := NewSimulator(g.Roles, machinesFor(t, g))
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}

	res := sim.Run(10)
	if res.Outcome != RunBudgetExceeded {
		t.Fatalf("expected budget-exceeded, got %s", res.Outcome)
	}
	if res.Steps != 10 {
		t.Fatalf("expected 10 steps, got %d", res.Steps)
	}
}

func TestDistributedStrategiesTerminate(t *testing.T) {
	for _, strat := range []Strategy{RoundRobin, RandomOrder, FixedFirst} {
		g := buildCFG(t, pingPong)
		sim, err := NewSimulator(g.Roles, machinesFor(t, g),
			WithStrategy(strat), WithSeed(7))
		if err != nil {
			t.Fatalf("simulator: %v", err)
		}
		if res := sim.Run(100); res.Outcome != RunSuccess {
			t.Fatalf("strategy %s: expected success, got %s", strat, res.Outcome)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"round-robin", RoundRobin, false},
		{"", RoundRobin, false},
		{"random", RandomOrder, false},
		{"fixed", FixedFirst, false},
		{"bogus", RoundRobin, true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseStrategy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("ParseStrategy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWalkerRunsToCompletion(t *testing.T) {
	g := buildCFG(t, pingPong)
	w := NewWalker(g, nil)

	steps := 0
	for !w.Completed() {
		if _, err := w.Step(); err != nil {
			t.Fatalf("step %d: %v", steps, err)
		}
		steps++
		if steps > 50 {
			t.Fatalf("walker did not complete")
		}
	}
	if _, err := w.Step(); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestWalkerForkJoin(t *testing.T) {
	g := buildCFG(t, `protocol Fan(role Hub, role A, role B) {
		par {
			Hub -> A: M1();
		} and {
			Hub -> B: M2();
		}
	}`)
	w := NewWalker(g, nil)

	sawSplit := false
	for !w.Completed() {
		ev, err := w.Step()
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if ev.Kind == EventState && len(w.Current().Tokens) > 1 {
			sawSplit = true
		}
	}
	if !sawSplit {
		t.Fatalf("fork must produce multiple concurrent tokens")
	}
}

func TestWalkerStepBackReplays(t *testing.T) {
	g := buildCFG(t, pingPong)
	w := NewWalker(g, nil)

	if err := w.StepBack(); !errors.Is(err, ErrNoStep) {
		t.Fatalf("step-back at the start must fail, got %v", err)
	}

	if _, err := w.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if _, err := w.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	after := w.Current()

	if err := w.StepBack(); err != nil {
		t.Fatalf("step-back: %v", err)
	}
	if _, err := w.Step(); err != nil {
		t.Fatalf("replay step: %v", err)
	}
	replayed := w.Current()

	if len(after.Tokens) != len(replayed.Tokens) {
		t.Fatalf("replay diverged: %v vs %v", after.Tokens, replayed.Tokens)
	}
	for i := range after.Tokens {
		if after.Tokens[i] != replayed.Tokens[i] {
			t.Fatalf("replay diverged: %v vs %v", after.Tokens, replayed.Tokens)
		}
	}
}

func TestWalkerChoiceResolvers(t *testing.T) {
	src := `protocol Pick(role A, role B) {
		choice at A {
			A -> B: Left();
		} or {
			A -> B: Right();
		}
	}`

	// Manual resolution always picks the second branch.
	g := buildCFG(t, src)
	manual := NewWalker(g, ManualBranch{Choose: func(_ *cfg.Node, _ []cfg.Edge) int { return 1 }})
	sawRight := false
	for !manual.Completed() {
		ev, err := manual.Step()
		if err != nil {
			t.Fatalf("manual step: %v", err)
		}
		if ev.Kind == EventSend && ev.Detail == "A->B:Right" {
			sawRight = true
		}
	}
	if !sawRight {
		t.Fatalf("manual resolver must drive the walk into Right")
	}

	random := NewWalker(buildCFG(t, src), RandomBranch{Rng: rand.New(rand.NewSource(3))})
	for !random.Completed() {
		if _, err := random.Step(); err != nil {
			t.Fatalf("random step: %v", err)
		}
	}
}
