package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/scribal-lang/scribal/internal/cfg"
)

func writeProtocol(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckAllSafeProtocol(t *testing.T) {
	file := writeProtocol(t, "ping.scr", `protocol Ping(role A, role B) {
	A -> B: Ping();
	B -> A: Pong();
}`)
	ws, err := loadWorkspace([]string{file}, 8)
	if err != nil {
		t.Fatalf("loadWorkspace failed: %v", err)
	}
	reports := checkAll(ws, 1000)
	if len(reports) != 1 {
		t.Fatalf("report count wrong. expected=1, got=%d", len(reports))
	}
	rep := reports[0]
	if rep.failed() {
		t.Fatalf("expected clean report, got %+v", rep)
	}
	if rep.Safety != "safe" {
		t.Fatalf("safety outcome wrong. expected=%q, got=%q", "safe", rep.Safety)
	}
	if rep.Explored == 0 {
		t.Fatal("expected at least one explored state")
	}
}

func TestCheckAllReportsBuildError(t *testing.T) {
	file := writeProtocol(t, "bad.scr", `protocol Bad(role A, role B) {
	rec Loop {
		A -> B: M();
	}
	continue Loop;
}`)
	ws, err := loadWorkspace([]string{file}, 8)
	if err != nil {
		t.Fatalf("loadWorkspace failed: %v", err)
	}
	reports := checkAll(ws, 1000)
	if len(reports) != 1 {
		t.Fatalf("report count wrong. expected=1, got=%d", len(reports))
	}
	if reports[0].BuildError == "" {
		t.Fatal("expected a build error for the out-of-scope continue")
	}
	if !reports[0].failed() {
		t.Fatal("build error must fail the report")
	}
}

func TestLoadWorkspaceResolvesDoAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib.scr")
	main := filepath.Join(dir, "main.scr")
	if err := os.WriteFile(lib, []byte(`protocol Greet(role X, role Y) {
	X -> Y: Hello();
}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(main, []byte(`protocol Session(role A, role B) {
	do Greet(A, B);
	B -> A: Bye();
}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ws, err := loadWorkspace([]string{lib, main}, 8)
	if err != nil {
		t.Fatalf("loadWorkspace failed: %v", err)
	}
	g, err := ws.graphFor("Session")
	if err != nil {
		t.Fatalf("graphFor failed: %v", err)
	}
	// Inlining must leave no unresolved call node behind.
	for _, n := range g.Nodes() {
		if n.Kind == cfg.KindCall {
			t.Fatalf("call node survived inlining: %v", n)
		}
	}
}

func TestGraphForAmbiguousWithoutName(t *testing.T) {
	file := writeProtocol(t, "two.scr", `protocol P1(role A, role B) { A -> B: M(); }
protocol P2(role X, role Y) { X -> Y: N(); }`)
	ws, err := loadWorkspace([]string{file}, 8)
	if err != nil {
		t.Fatalf("loadWorkspace failed: %v", err)
	}
	if _, err := ws.graphFor(""); err == nil {
		t.Fatal("expected an error when several protocols are loaded")
	}
	if _, err := ws.graphFor("P2"); err != nil {
		t.Fatalf("graphFor(P2) failed: %v", err)
	}
}

func TestProtocolFilesFiltersExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.scr", "b.scr", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("protocol X(role A, role B) {}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := protocolFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("file count wrong. expected=2, got=%d", len(files))
	}
}
