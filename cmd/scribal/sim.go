package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scribal-lang/scribal/internal/cfsm"
	"github.com/scribal-lang/scribal/internal/semantics"
	"github.com/scribal-lang/scribal/internal/sim"
)

func newSimCmd(a *app) *cobra.Command {
	var (
		protocol string
		schedule string
		seed     int64
		maxSteps int
	)
	cmd := &cobra.Command{
		Use:   "sim [file]",
		Short: "Run the distributed simulator and print the event trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(args, a.cfg.InlineDepth)
			if err != nil {
				return err
			}
			g, err := ws.graphFor(protocol)
			if err != nil {
				return err
			}
			res := cfsm.ProjectAll(g)
			if len(res.Errors) > 0 {
				return fmt.Errorf("projection failed: %v", res.Errors[0])
			}

			if schedule == "" {
				schedule = a.cfg.Schedule
			}
			strategy, err := sim.ParseStrategy(schedule)
			if err != nil {
				return err
			}
			if seed == 0 {
				seed = a.cfg.Seed
			}
			if maxSteps == 0 {
				maxSteps = a.cfg.SimBudget
			}

			s, err := sim.NewSimulator(g.Roles, res.Machines,
				sim.WithStrategy(strategy), sim.WithSeed(seed))
			if err != nil {
				return err
			}
			run := s.Run(maxSteps)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s (%s scheduling, seed %d)\n", run.ID, strategy, seed)
			for _, ev := range run.Events {
				fmt.Fprintln(out, ev)
			}
			fmt.Fprintf(out, "outcome: %s after %d steps\n", run.Outcome, run.Steps)
			if run.Outcome == sim.RunDeadlock {
				return fmt.Errorf("simulation deadlocked")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&protocol, "protocol", "", "protocol to simulate (default: the only one in the file)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "scheduling strategy: round-robin, random, fixed")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random scheduler seed")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "tick budget")
	return cmd
}

func newTraceCmd(a *app) *cobra.Command {
	var (
		protocol string
		maxSteps int
	)
	cmd := &cobra.Command{
		Use:   "trace [file]",
		Short: "Execute the rendezvous semantics and print the reduction trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(args, a.cfg.InlineDepth)
			if err != nil {
				return err
			}
			g, err := ws.graphFor(protocol)
			if err != nil {
				return err
			}
			res := cfsm.ProjectAll(g)
			if len(res.Errors) > 0 {
				return fmt.Errorf("projection failed: %v", res.Errors[0])
			}
			ctx, err := semantics.NewContext(g.Roles, res.Machines)
			if err != nil {
				return err
			}
			if maxSteps == 0 {
				maxSteps = a.cfg.ExecBudget
			}

			tr := semantics.ExecuteToCompletion(ctx, maxSteps)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", tr.Contexts[0])
			for i, step := range tr.Steps {
				fmt.Fprintf(out, "  --%s--> %s\n", step, tr.Contexts[i+1])
			}
			fmt.Fprintf(out, "outcome: %s after %d steps\n", tr.Outcome, len(tr.Steps))
			if tr.Outcome == semantics.ExecStuck {
				return fmt.Errorf("execution stuck")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&protocol, "protocol", "", "protocol to trace (default: the only one in the file)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "reduction step budget")
	return cmd
}
