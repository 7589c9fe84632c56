// Command scribal analyzes multiparty protocol sources: it builds global
// control-flow graphs, projects per-role state machines, and runs the
// static and reachability-based verifications over them.
package main

import (
	"github.com/scribal-lang/scribal/internal/cli"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		cli.ExitWithError("%v", err)
	}
}
