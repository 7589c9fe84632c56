package cfsm

import (
	"strings"
	"testing"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/cfg"
	"github.com/scribal-lang/scribal/internal/parser"
)

func buildCFG(t *testing.T, src string) *cfg.CFG {
	t.Helper()
	m, diags := parser.Parse(src, "test.scr")
	for _, d := range diags {
		t.Fatalf("parse error: %s", d)
	}
	if len(m.Protocols) != 1 {
		t.Fatalf("expected 1 protocol, got %d", len(m.Protocols))
	}
	g, err := cfg.NewSession().Build(m.Protocols[0])
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return g
}

func project(t *testing.T, g *cfg.CFG, role ast.Role) *Machine {
	t.Helper()
	m, err := Project(g, role)
	if err != nil {
		t.Fatalf("project %s: %v", role, err)
	}
	return m
}

// actions flattens a machine into the signature sequence of a single
// deterministic run, failing on branching states.
func runSignatures(t *testing.T, m *Machine) []string {
	t.Helper()
	var out []string
	seen := make(map[StateID]bool)
	cur := m.Initial
	for {
		st := m.State(cur)
		if len(st.Out) == 0 {
			return out
		}
		if len(st.Out) > 1 {
			t.Fatalf("state s%d is not sequential:\n%s", cur, m)
		}
		if seen[cur] {
			t.Fatalf("unexpected cycle at s%d:\n%s", cur, m)
		}
		seen[cur] = true
		out = append(out, st.Out[0].Action.Signature())
		cur = st.Out[0].To
	}
}

const pingPong = `protocol PingPong(role A, role B) {
	A -> B: Ping();
	B -> A: Pong();
}`

func TestProjectPingPong(t *testing.T) {
	g := buildCFG(t, pingPong)

	a := project(t, g, "A")
	if got, want := strings.Join(runSignatures(t, a), " "), "!B:Ping ?B:Pong"; got != want {
		t.Fatalf("role A actions: expected %q, got %q", want, got)
	}
	if !m25Terminal(a) {
		t.Fatalf("role A must end in a terminal state:\n%s", a)
	}

	b := project(t, g, "B")
	if got, want := strings.Join(runSignatures(t, b), " "), "?A:Ping !A:Pong"; got != want {
		t.Fatalf("role B actions: expected %q, got %q", want, got)
	}
}

// m25Terminal reports whether a sequential machine's final state is
// terminal-capable.
func m25Terminal(m *Machine) bool {
	cur := m.Initial
	for {
		st := m.State(cur)
		if len(st.Out) == 0 {
			return st.Terminal
		}
		cur = st.Out[0].To
	}
}

func TestProjectUninvolvedRoleCollapsesToTerminal(t *testing.T) {
	g := buildCFG(t, `protocol Aside(role A, role B, role C) {
		A -> B: M();
		B -> A: N();
	}`)

	c := project(t, g, "C")
	init := c.State(c.Initial)
	if len(init.Out) != 0 {
		t.Fatalf("uninvolved role must project to a silent machine, got:\n%s", c)
	}
	if !init.Terminal {
		t.Fatalf("uninvolved role's initial state must be terminal-capable:\n%s", c)
	}
}

func TestProjectDeciderChoice(t *testing.T) {
	g := buildCFG(t, `protocol Pick(role A, role B) {
		choice at A {
			A -> B: Left();
		} or {
			A -> B: Right();
		}
	}`)

	a := project(t, g, "A")
	init := a.State(a.Initial)
	if init.Kind != StateChoice || len(init.Out) != 2 {
		t.Fatalf("decider initial state: expected 2-way choice, got:\n%s", a)
	}
	sigs := map[string]bool{}
	for _, tr := range init.Out {
		if _, ok := tr.Action.(Send); !ok {
			t.Fatalf("decider branch action must be a send, got %s", tr.Action)
		}
		sigs[tr.Action.Signature()] = true
	}
	if !sigs["!B:Left"] || !sigs["!B:Right"] {
		t.Fatalf("decider must offer Left and Right, got %v", sigs)
	}

	b := project(t, g, "B")
	binit := b.State(b.Initial)
	if len(binit.Out) != 2 {
		t.Fatalf("B must see a 2-way receive choice, got:\n%s", b)
	}
	for _, tr := range binit.Out {
		if _, ok := tr.Action.(Receive); !ok {
			t.Fatalf("B branch action must be a receive, got %s", tr.Action)
		}
	}
}

func TestProjectTauMergesIndistinguishableBranches(t *testing.T) {
	// C's first visible action is the same in both branches and leads to
	// the same continuation, so C's view collapses to one receive.
	g := buildCFG(t, `protocol Inform(role A, role B, role C) {
		choice at A {
			A -> B: Left();
			B -> C: Note();
		} or {
			A -> B: Right();
			B -> C: Note();
		}
	}`)

	c := project(t, g, "C")
	if got, want := strings.Join(runSignatures(t, c), " "), "?B:Note"; got != want {
		t.Fatalf("role C actions: expected %q, got %q\n%s", want, got, c)
	}
}

func TestProjectDeterminismViolation(t *testing.T) {
	// B receives the same label in both branches but must then behave
	// differently, which no deterministic local machine can do.
	g := buildCFG(t, `protocol Confused(role A, role B, role C) {
		choice at A {
			A -> B: Go();
			B -> C: X();
		} or {
			A -> B: Go();
			B -> C: Y();
		}
	}`)

	if _, err := Project(g, "B"); err == nil {
		t.Fatalf("expected a determinism projection error for role B")
	} else if _, ok := err.(*ProjectionError); !ok {
		t.Fatalf("expected *ProjectionError, got %T: %v", err, err)
	}

	// The other roles still project: A chooses, C receives either label.
	res := ProjectAll(g)
	if len(res.Errors) != 1 || res.Errors[0].Role != "B" {
		t.Fatalf("ProjectAll errors: expected exactly role B, got %v", res.Errors)
	}
	if res.Machines["A"] == nil || res.Machines["C"] == nil {
		t.Fatalf("ProjectAll must keep the successful roles, got %v", res.Machines)
	}
}

func TestProjectForkSingleBranch(t *testing.T) {
	g := buildCFG(t, `protocol Fan(role Hub, role A, role B) {
		par {
			Hub -> A: M1();
		} and {
			Hub -> B: M2();
		}
	}`)

	a := project(t, g, "A")
	if got, want := strings.Join(runSignatures(t, a), " "), "?Hub:M1"; got != want {
		t.Fatalf("role A actions: expected %q, got %q", want, got)
	}
	b := project(t, g, "B")
	if got, want := strings.Join(runSignatures(t, b), " "), "?Hub:M2"; got != want {
		t.Fatalf("role B actions: expected %q, got %q", want, got)
	}
}

func TestProjectForkMultipleBranchesFails(t *testing.T) {
	g := buildCFG(t, `protocol Busy(role Hub, role A, role B) {
		par {
			Hub -> A: M1();
		} and {
			Hub -> B: M2();
		}
	}`)
	if _, err := Project(g, "Hub"); err == nil {
		t.Fatalf("expected a projection error for a role in two parallel branches")
	}
}

func TestProjectRecursionLoops(t *testing.T) {
	g := buildCFG(t, `protocol Loop(role A, role B) {
		rec X {
			A -> B: More();
			continue X;
		}
	}`)

	a := project(t, g, "A")
	init := a.State(a.Initial)
	if len(init.Out) != 1 {
		t.Fatalf("expected one send transition, got:\n%s", a)
	}
	next := a.State(init.Out[0].To)
	if len(next.Out) != 1 || next.Out[0].To != next.ID {
		t.Fatalf("recursion must collapse to a self-looping send state, got:\n%s", a)
	}
	if m25TerminalAny(a) {
		t.Fatalf("a loop with no exit must have no terminal state:\n%s", a)
	}
}

func m25TerminalAny(m *Machine) bool {
	for _, s := range m.States() {
		if s.Terminal {
			return true
		}
	}
	return false
}

func TestProjectIdempotent(t *testing.T) {
	g := buildCFG(t, `protocol Rich(role A, role B, role C) {
		choice at A {
			A -> B: Left();
			B -> C: Fwd();
		} or {
			A -> B: Right();
			rec X {
				B -> A: Tick();
				continue X;
			}
		}
	}`)

	for _, role := range []ast.Role{"A", "B", "C"} {
		first := project(t, g, role)
		second := project(t, g, role)
		if !first.Equal(second) {
			t.Fatalf("projection of %s is not idempotent:\n%s\nvs\n%s", role, first, second)
		}
	}
}

func TestProjectMulticastSingleSend(t *testing.T) {
	g := buildCFG(t, `protocol Cast(role Hub, role A, role B) {
		Hub -> A, B: Update();
	}`)

	hub := project(t, g, "Hub")
	init := hub.State(hub.Initial)
	if len(init.Out) != 1 {
		t.Fatalf("multicast must stay one send transition, got:\n%s", hub)
	}
	send, ok := init.Out[0].Action.(Send)
	if !ok || len(send.To) != 2 {
		t.Fatalf("expected one send to 2 receivers, got %s", init.Out[0].Action)
	}
}

func TestProjectCallNode(t *testing.T) {
	g := buildCFG(t, `protocol Outer(role A, role B, role C) {
		do Auth(A, B);
		A -> C: Done();
	}`)

	a := project(t, g, "A")
	init := a.State(a.Initial)
	if _, ok := init.Out[0].Action.(Call); !ok {
		t.Fatalf("role A must see the unresolved call, got %s", init.Out[0].Action)
	}

	// C is not a call argument: the call is invisible to it.
	c := project(t, g, "C")
	if got, want := strings.Join(runSignatures(t, c), " "), "?A:Done"; got != want {
		t.Fatalf("role C actions: expected %q, got %q", want, got)
	}
}

func TestRenderSequential(t *testing.T) {
	g := buildCFG(t, pingPong)
	out := project(t, g, "A").Render()

	for _, want := range []string{
		"local protocol PingPong at A {",
		"Ping() to B;",
		"Pong() from B;",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderChoiceAndCycle(t *testing.T) {
	g := buildCFG(t, `protocol Retry(role A, role B) {
		rec X {
			choice at A {
				A -> B: Again();
				continue X;
			} or {
				A -> B: Stop();
			}
		}
	}`)
	out := project(t, g, "A").Render()

	for _, want := range []string{"choice {", "} or {", "rec loop_s", "continue loop_s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered output missing %q:\n%s", want, out)
		}
	}
}

func TestMachineDOT(t *testing.T) {
	g := buildCFG(t, pingPong)
	dot := project(t, g, "B").DOT()
	if !strings.Contains(dot, "digraph") || !strings.Contains(dot, "Ping() from A") {
		t.Fatalf("dot output incomplete:\n%s", dot)
	}
}
