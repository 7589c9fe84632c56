package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scribal-lang/scribal/internal/cfsm"
	"github.com/scribal-lang/scribal/internal/semantics"
	"github.com/scribal-lang/scribal/internal/verify"
)

// protocolReport aggregates every verdict for one protocol.
type protocolReport struct {
	Protocol   string          `json:"protocol"`
	BuildError string          `json:"build_error,omitempty"`
	Analyses   []verify.Result `json:"analyses,omitempty"`
	Projection []string        `json:"projection_errors,omitempty"`
	Safety     string          `json:"safety,omitempty"`
	SafetyInfo string          `json:"safety_detail,omitempty"`
	Explored   int             `json:"states_explored,omitempty"`
}

func (r protocolReport) failed() bool {
	if r.BuildError != "" || len(r.Projection) > 0 {
		return true
	}
	for _, res := range r.Analyses {
		if !res.Passed() {
			return true
		}
	}
	return r.Safety != "" && r.Safety != semantics.SafetySafe.String()
}

func newCheckCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "check [files...]",
		Short: "Build, verify and safety-check every protocol",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(args, a.cfg.InlineDepth)
			if err != nil {
				return err
			}
			reports := checkAll(ws, a.cfg.SafetyBudget)

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(reports); err != nil {
					return err
				}
			} else {
				printReports(cmd.OutOrStdout(), a, reports)
			}

			for _, r := range reports {
				if r.failed() {
					return fmt.Errorf("verification failed")
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON reports")
	return cmd
}

// checkAll runs the full pipeline over every loaded protocol.
func checkAll(ws *workspace, safetyBudget int) []protocolReport {
	var reports []protocolReport
	for _, p := range ws.protocols {
		rep := protocolReport{Protocol: p.Name}
		if err, failed := ws.buildErrs[p.Name]; failed {
			rep.BuildError = err.Error()
			reports = append(reports, rep)
			continue
		}
		g := ws.graphs[p.Name]
		rep.Analyses = verify.RunAll(g)

		res := cfsm.ProjectAll(g)
		for _, perr := range res.Errors {
			rep.Projection = append(rep.Projection, perr.Error())
		}
		if len(res.Errors) == 0 {
			ctx, err := semantics.NewContext(g.Roles, res.Machines)
			if err != nil {
				rep.SafetyInfo = err.Error()
				reports = append(reports, rep)
				continue
			}
			checker := &semantics.SafetyChecker{Budget: safetyBudget}
			sres := checker.Check(ctx)
			rep.Safety = sres.Outcome.String()
			rep.Explored = sres.StatesExplored
			if sres.Violation != nil {
				rep.SafetyInfo = sres.Violation.Error()
			}
		}
		reports = append(reports, rep)
	}
	return reports
}

func printReports(w io.Writer, a *app, reports []protocolReport) {
	for _, r := range reports {
		fmt.Fprintf(w, "protocol %s\n", r.Protocol)
		if r.BuildError != "" {
			fmt.Fprintf(w, "  %s build: %s\n", a.palette.Fail("FAIL"), r.BuildError)
			continue
		}
		for _, res := range r.Analyses {
			mark := a.palette.Pass("PASS")
			switch res.Outcome {
			case verify.Fail:
				mark = a.palette.Fail("FAIL")
			case verify.Warn:
				mark = a.palette.Warn("WARN")
			}
			fmt.Fprintf(w, "  %s %s\n", mark, res.Analysis)
			for _, d := range res.Findings {
				fmt.Fprintf(w, "       %s\n", d)
			}
		}
		for _, perr := range r.Projection {
			fmt.Fprintf(w, "  %s projection: %s\n", a.palette.Fail("FAIL"), perr)
		}
		if r.Safety != "" {
			mark := a.palette.Pass("PASS")
			if r.Safety != "safe" {
				mark = a.palette.Fail("FAIL")
			}
			fmt.Fprintf(w, "  %s safety (%s, %d states)\n", mark, r.Safety, r.Explored)
			if r.SafetyInfo != "" {
				fmt.Fprintf(w, "       %s\n", r.SafetyInfo)
			}
		}
	}
}
