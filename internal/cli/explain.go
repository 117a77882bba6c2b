package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/ir"
	"github.com/roach88/sensorq/internal/translate"
)

// ExplainResult is the JSON payload of the explain command.
type ExplainResult struct {
	Plan        json.RawMessage `json:"plan"`
	Fingerprint string          `json:"fingerprint"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <query>",
		Short: "Show how a query is split between server and client",
		Long: `Translate a query and print the plan: the server requests with their
filters, sort and paging, and the residual evaluated locally.

The query uses Go expression syntax with the element parameter "s":

Examples:
  sensorq explain 'Where(s.Status == Up && s.Priority > 3).Take(5)'
  sensorq explain --strict 'Where(s.Name.Contains("db") || s.Priority == 1)'
  sensorq explain --format json 'OrderBy(s.Name).First()'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runExplain(opts *RootOptions, query string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	sess, err := openSession(opts, newLogger(opts, formatter.GetErrWriter()))
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load catalog", err)
	}

	plan, err := sess.translate(cmd.Context(), query)
	if err != nil {
		return reportTranslateError(formatter, err)
	}

	if opts.Format == "json" {
		data, err := ir.MarshalCanonical(plan.Snapshot())
		if err != nil {
			return formatter.Fail(ExitFailure, "failed to render plan", err)
		}
		return formatter.PlanSuccess(plan.ID, ExplainResult{
			Plan:        data,
			Fingerprint: plan.Fingerprint(),
		})
	}

	fmt.Fprint(formatter.Writer, formatPlan(plan))
	return nil
}

// formatPlan renders a plan for people.
func formatPlan(plan *translate.Plan) string {
	var b strings.Builder
	mode := "lenient"
	if plan.Strict {
		mode = "strict"
	}

	fmt.Fprintf(&b, "Query:    %s\n", plan.Query())
	fmt.Fprintf(&b, "Mode:     %s\n", mode)
	fmt.Fprintf(&b, "Requests: %d", len(plan.Requests))
	if plan.RequiresSplit {
		b.WriteString(" (split")
		if plan.Merge != nil {
			fmt.Fprintf(&b, ", merged by %s", plan.Merge.Identity)
		}
		b.WriteString(")")
	}
	b.WriteString("\n")

	for i, req := range plan.Requests {
		fmt.Fprintf(&b, "  [%d]", i)
		if len(req.Filters) == 0 {
			b.WriteString(" all objects")
		}
		for j, c := range req.Filters {
			if j > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " %s", c)
		}
		b.WriteString("\n")
		if req.Sort != nil {
			fmt.Fprintf(&b, "      sort %s\n", req.Sort)
		}
		if !req.Paging.IsZero() {
			fmt.Fprintf(&b, "      %s\n", req.Paging)
		}
	}

	residual := "none"
	if plan.Residual != nil {
		residual = expr.Format(plan.Residual)
	}
	fmt.Fprintf(&b, "Residual: %s\n", residual)
	fmt.Fprintf(&b, "Plan:     %s\n", plan.ID)
	return b.String()
}
