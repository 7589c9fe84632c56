// Package diag defines the structured diagnostics emitted by the parser
// and the verification analyses. A diagnostic never carries control flow;
// fatal conditions are ordinary Go errors, diagnostics are findings.
package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scribal-lang/scribal/internal/source"
)

// Severity classifies how serious a finding is.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Diagnostic is a single finding tied to a source span.
type Diagnostic struct {
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Span     source.Span `json:"-"`
	Severity Severity    `json:"severity"`
}

// String renders the diagnostic in file:line:col: severity[CODE] message form.
func (d Diagnostic) String() string {
	if !d.Span.Start.IsValid() {
		return fmt.Sprintf("%s[%s]: %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s[%s]: %s", d.Span.Start, d.Severity, d.Code, d.Message)
}

// Errorf builds an error-severity diagnostic.
func Errorf(code string, span source.Span, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityError, Span: span, Message: fmt.Sprintf(format, args...)}
}

// Warningf builds a warning-severity diagnostic.
func Warningf(code string, span source.Span, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityWarning, Span: span, Message: fmt.Sprintf(format, args...)}
}

// Infof builds an info-severity diagnostic.
func Infof(code string, span source.Span, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityInfo, Span: span, Message: fmt.Sprintf(format, args...)}
}

// Bag accumulates diagnostics across a pass.
type Bag struct {
	items []Diagnostic
}

// Add appends one diagnostic.
func (b *Bag) Add(d Diagnostic) {
	b.items = append(b.items, d)
}

// AddAll appends a batch of diagnostics.
func (b *Bag) AddAll(ds []Diagnostic) {
	b.items = append(b.items, ds...)
}

// Items returns the collected diagnostics, errors first, in source order
// within each severity. The returned slice is owned by the caller.
func (b *Bag) Items() []Diagnostic {
	out := make([]Diagnostic, len(b.items))
	copy(out, b.items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity < out[j].Severity
		}
		return out[i].Span.Start.Before(out[j].Span.Start)
	})
	return out
}

// HasErrors reports whether any collected diagnostic is error severity.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Len returns the number of collected diagnostics.
func (b *Bag) Len() int { return len(b.items) }

// Format renders all diagnostics one per line.
func (b *Bag) Format() string {
	var sb strings.Builder
	for _, d := range b.Items() {
		sb.WriteString(d.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
