package source

import "testing"

func pos(line, col, off int) Position {
	return Position{File: "t.scr", Line: line, Column: col, Offset: off}
}

func TestPositionString(t *testing.T) {
	tests := []struct {
		pos  Position
		want string
	}{
		{Position{File: "dir/auth.scr", Line: 3, Column: 7, Offset: 40}, "auth.scr:3:7"},
		{Position{Line: 1, Column: 1, Offset: 0}, "1:1"},
	}

	for i, tt := range tests {
		if got := tt.pos.String(); got != tt.want {
			t.Errorf("tests[%d] - position string wrong. expected=%q, got=%q", i, tt.want, got)
		}
	}
}

func TestSpanValidity(t *testing.T) {
	valid := NewSpan(pos(1, 1, 0), pos(1, 5, 4))
	if !valid.IsValid() {
		t.Fatalf("expected span %v to be valid", valid)
	}

	backwards := NewSpan(pos(2, 1, 10), pos(1, 1, 0))
	if backwards.IsValid() {
		t.Fatalf("expected backwards span to be invalid")
	}

	crossFile := Span{Start: pos(1, 1, 0), End: Position{File: "other.scr", Line: 1, Column: 2, Offset: 1}}
	if crossFile.IsValid() {
		t.Fatalf("expected cross-file span to be invalid")
	}
}

func TestSpanUnion(t *testing.T) {
	a := NewSpan(pos(1, 1, 0), pos(1, 4, 3))
	b := NewSpan(pos(2, 1, 10), pos(2, 6, 15))

	u := a.Union(b)
	if u.Start != a.Start || u.End != b.End {
		t.Fatalf("union wrong. expected=%v..%v, got=%v..%v", a.Start, b.End, u.Start, u.End)
	}

	// Union with an invalid span returns the valid side unchanged.
	if got := a.Union(Span{}); got != a {
		t.Fatalf("union with invalid span: expected=%v, got=%v", a, got)
	}
}

func TestSpanContains(t *testing.T) {
	s := NewSpan(pos(1, 1, 0), pos(1, 10, 9))

	if !s.Contains(pos(1, 5, 4)) {
		t.Errorf("expected span to contain interior position")
	}
	if s.Contains(pos(1, 10, 9)) {
		t.Errorf("expected span to exclude its end position")
	}
}
