package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scribal-lang/scribal/internal/ast"
	"github.com/scribal-lang/scribal/internal/cfsm"
)

func newProjectCmd(a *app) *cobra.Command {
	var (
		role   string
		dotOut bool
	)
	cmd := &cobra.Command{
		Use:   "project [files...]",
		Short: "Project per-role state machines and print them as local protocols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(args, a.cfg.InlineDepth)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := false
			for _, p := range ws.protocols {
				if err, bad := ws.buildErrs[p.Name]; bad {
					return err
				}
				g := ws.graphs[p.Name]

				roles := g.Roles
				if role != "" {
					roles = []ast.Role{ast.Role(role)}
				}
				for _, r := range roles {
					m, err := cfsm.Project(g, r)
					if err != nil {
						fmt.Fprintf(out, "// %s\n", err)
						failed = true
						continue
					}
					if dotOut {
						fmt.Fprint(out, m.DOT())
					} else {
						fmt.Fprint(out, m.Render())
					}
				}
			}
			if failed {
				return fmt.Errorf("projection failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "project a single role (default: all declared roles)")
	cmd.Flags().BoolVar(&dotOut, "dot", false, "emit Graphviz DOT instead of local protocol syntax")
	return cmd
}

func newGraphCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [files...]",
		Short: "Emit each protocol's control-flow graph as Graphviz DOT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(args, a.cfg.InlineDepth)
			if err != nil {
				return err
			}
			for _, p := range ws.protocols {
				if err, bad := ws.buildErrs[p.Name]; bad {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), ws.graphs[p.Name].DOT())
			}
			return nil
		},
	}
	return cmd
}
