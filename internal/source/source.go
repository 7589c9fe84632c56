// Package source provides position tracking for protocol source files.
// Positions and spans are attached to AST nodes and diagnostics so that
// every error can point back at the .scr text it came from.
package source

import (
	"fmt"
	"path/filepath"
)

// Position is a single point in a protocol source file.
type Position struct {
	File   string // source file name, may be empty for in-memory input
	Line   int    // 1-based line number
	Column int    // 1-based column number
	Offset int    // 0-based byte offset
}

// IsValid reports whether the position carries real location data.
func (p Position) IsValid() bool {
	return p.Line > 0 && p.Column > 0 && p.Offset >= 0
}

// String returns "file:line:col", omitting the file when unknown.
func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", filepath.Base(p.File), p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Before reports whether p comes before other in the same file.
func (p Position) Before(other Position) bool {
	if p.File != other.File {
		return p.File < other.File
	}
	return p.Offset < other.Offset
}

// Span is a half-open range [Start, End) of source text.
type Span struct {
	Start Position
	End   Position
}

// NewSpan builds a span from two positions.
func NewSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}

// IsValid reports whether both endpoints are valid and ordered.
func (s Span) IsValid() bool {
	return s.Start.IsValid() && s.End.IsValid() &&
		s.Start.File == s.End.File &&
		s.Start.Offset <= s.End.Offset
}

// String returns a compact "file:line:col-col" form for diagnostics.
func (s Span) String() string {
	if !s.IsValid() {
		return s.Start.String()
	}
	if s.Start.Line == s.End.Line {
		return fmt.Sprintf("%s-%d", s.Start.String(), s.End.Column)
	}
	return fmt.Sprintf("%s-%d:%d", s.Start.String(), s.End.Line, s.End.Column)
}

// Union returns the smallest span covering both s and other.
func (s Span) Union(other Span) Span {
	if !s.IsValid() {
		return other
	}
	if !other.IsValid() {
		return s
	}
	out := s
	if other.Start.Before(out.Start) {
		out.Start = other.Start
	}
	if out.End.Before(other.End) {
		out.End = other.End
	}
	return out
}

// Contains reports whether the span covers pos.
func (s Span) Contains(pos Position) bool {
	if !s.IsValid() || !pos.IsValid() || s.Start.File != pos.File {
		return false
	}
	return s.Start.Offset <= pos.Offset && pos.Offset < s.End.Offset
}
