// Package registry stores protocol declarations under semantic versions
// and resolves sub-protocol invocations against them. The CFG builder
// consults a registry to inline `do` targets; without one, every `do`
// stays an opaque call node.
package registry

import (
	"fmt"
	"sort"

	semver "github.com/Masterminds/semver/v3"

	"github.com/scribal-lang/scribal/internal/ast"
)

// Entry is one registered protocol version.
type Entry struct {
	Decl    *ast.Protocol
	Version *semver.Version
}

// NotFoundError indicates that no registered version satisfies a lookup.
type NotFoundError struct {
	Protocol   string
	Constraint string
}

func (e *NotFoundError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("protocol %s is not registered", e.Protocol)
	}
	return fmt.Sprintf("no registered version of %s satisfies %q", e.Protocol, e.Constraint)
}

// Registry maps protocol names to their registered versions. The zero
// value is not usable; call New. A registry is safe for concurrent reads
// once fully populated, matching the build-once-read-many use of CFGs.
type Registry struct {
	entries map[string][]Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string][]Entry)}
}

// Register adds decl under the given version string ("1.2.0"). Registering
// the same name+version twice replaces the earlier declaration.
func (r *Registry) Register(decl *ast.Protocol, version string) error {
	if decl == nil {
		return fmt.Errorf("register %s: nil declaration", version)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("register %s@%s: %w", decl.Name, version, err)
	}

	list := r.entries[decl.Name]
	for i, e := range list {
		if e.Version.Equal(v) {
			list[i].Decl = decl
			return nil
		}
	}
	list = append(list, Entry{Decl: decl, Version: v})
	// Keep versions ascending so Resolve can scan from the back.
	sort.Slice(list, func(i, j int) bool { return list[i].Version.LessThan(list[j].Version) })
	r.entries[decl.Name] = list
	return nil
}

// Resolve returns the highest registered version of name that satisfies
// constraint. An empty constraint accepts any version.
func (r *Registry) Resolve(name, constraint string) (Entry, error) {
	list := r.entries[name]
	if len(list) == 0 {
		return Entry{}, &NotFoundError{Protocol: name}
	}

	con, err := parseConstraint(constraint)
	if err != nil {
		return Entry{}, fmt.Errorf("resolve %s: %w", name, err)
	}

	for i := len(list) - 1; i >= 0; i-- {
		if con.Check(list[i].Version) {
			return list[i], nil
		}
	}
	return Entry{}, &NotFoundError{Protocol: name, Constraint: constraint}
}

// Versions lists the registered versions for name in ascending order.
func (r *Registry) Versions(name string) []string {
	list := r.entries[name]
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.Version.String()
	}
	return out
}

// Names lists all registered protocol names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func parseConstraint(expr string) (*semver.Constraints, error) {
	if expr == "" {
		// Any version.
		return semver.NewConstraint(">=0.0.0-0")
	}
	return semver.NewConstraint(expr)
}
