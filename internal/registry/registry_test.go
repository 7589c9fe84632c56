package registry

import (
	"errors"
	"testing"

	"github.com/scribal-lang/scribal/internal/ast"
)

func decl(name string) *ast.Protocol {
	return &ast.Protocol{Name: name, Roles: []ast.Role{"A", "B"}, Body: &ast.Block{}}
}

func TestRegisterAndResolveHighest(t *testing.T) {
	r := New()
	for _, v := range []string{"1.0.0", "1.2.0", "2.0.0"} {
		if err := r.Register(decl("Auth"), v); err != nil {
			t.Fatalf("register %s failed: %v", v, err)
		}
	}

	e, err := r.Resolve("Auth", "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got := e.Version.String(); got != "2.0.0" {
		t.Fatalf("empty constraint should pick highest. expected=2.0.0, got=%s", got)
	}

	e, err = r.Resolve("Auth", "^1.0")
	if err != nil {
		t.Fatalf("resolve ^1.0 failed: %v", err)
	}
	if got := e.Version.String(); got != "1.2.0" {
		t.Fatalf("^1.0 should pick highest 1.x. expected=1.2.0, got=%s", got)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := New()
	if err := r.Register(decl("Auth"), "1.0.0"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err := r.Resolve("Missing", "")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for unknown name, got %v", err)
	}

	_, err = r.Resolve("Auth", ">=3.0.0")
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for unsatisfiable constraint, got %v", err)
	}
	if nf.Constraint != ">=3.0.0" {
		t.Fatalf("constraint not carried in error: %v", nf)
	}
}

func TestRegisterInvalidVersion(t *testing.T) {
	r := New()
	if err := r.Register(decl("Auth"), "not-a-version"); err == nil {
		t.Fatalf("expected error for malformed version")
	}
}

func TestReRegisterReplaces(t *testing.T) {
	r := New()
	first := decl("Auth")
	second := decl("Auth")
	if err := r.Register(first, "1.0.0"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(second, "1.0.0"); err != nil {
		t.Fatalf("re-register failed: %v", err)
	}

	e, err := r.Resolve("Auth", "1.0.0")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if e.Decl != second {
		t.Fatalf("expected re-registration to replace the declaration")
	}
	if got := len(r.Versions("Auth")); got != 1 {
		t.Fatalf("version count wrong. expected=1, got=%d", got)
	}
}

func TestNamesSorted(t *testing.T) {
	r := New()
	for _, n := range []string{"Zeta", "Auth", "Mid"} {
		if err := r.Register(decl(n), "1.0.0"); err != nil {
			t.Fatalf("register failed: %v", err)
		}
	}
	names := r.Names()
	want := []string{"Auth", "Mid", "Zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names[%d] wrong. expected=%q, got=%q", i, want[i], names[i])
		}
	}
}
