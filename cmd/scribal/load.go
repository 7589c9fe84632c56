package main

import (
	"fmt"
	"os"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/cfg"
	"github.com/scribal-lang/scribal/internal/parser"
	"github.com/scribal-lang/scribal/internal/registry"
)

// workspace holds everything parsed and built from one invocation's
// source files. Protocols from every file register with one another, so
// `do` targets resolve across files.
type workspace struct {
	protocols []*ast.Protocol
	graphs    map[string]*cfg.CFG
	buildErrs map[string]error
}

// loadWorkspace parses the given .scr files, registers every declared
// protocol, and builds every graph through one shared session so node
// ids never collide across protocols.
func loadWorkspace(files []string, inlineDepth int) (*workspace, error) {
	ws := &workspace{
		graphs:    make(map[string]*cfg.CFG),
		buildErrs: make(map[string]error),
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		mod, diags := parser.Parse(string(data), file)
		if len(diags) > 0 {
			for _, d := range diags {
				fmt.Fprintln(os.Stderr, d)
			}
			return nil, fmt.Errorf("%s: %d syntax error(s)", file, len(diags))
		}
		ws.protocols = append(ws.protocols, mod.Protocols...)
	}

	reg := registry.New()
	for _, p := range ws.protocols {
		if err := reg.Register(p, "1.0.0"); err != nil {
			return nil, err
		}
	}

	session := cfg.NewSession()
	for _, p := range ws.protocols {
		g, err := session.Build(p, cfg.WithRegistry(reg), cfg.WithInlineDepth(inlineDepth))
		if err != nil {
			ws.buildErrs[p.Name] = err
			continue
		}
		ws.graphs[p.Name] = g
	}
	return ws, nil
}

// graphFor picks one protocol's graph, defaulting to the only one when
// name is empty.
func (ws *workspace) graphFor(name string) (*cfg.CFG, error) {
	if name == "" {
		if len(ws.graphs) == 1 {
			for _, g := range ws.graphs {
				return g, nil
			}
		}
		return nil, fmt.Errorf("several protocols loaded; pick one with --protocol")
	}
	if err, failed := ws.buildErrs[name]; failed {
		return nil, err
	}
	g, ok := ws.graphs[name]
	if !ok {
		return nil, fmt.Errorf("protocol %s not found", name)
	}
	return g, nil
}
