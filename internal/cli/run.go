package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sensorq/internal/catalog"
	"github.com/roach88/sensorq/internal/eval"
	"github.com/roach88/sensorq/internal/executor"
	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/harness"
	"github.com/roach88/sensorq/internal/store"
	"github.com/roach88/sensorq/internal/translate"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Objects  string
	Database string
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Requests int `json:"requests"`
	Fetched  int `json:"fetched"`
	Value    any `json:"value"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Translate a query and execute it against an object table",
		Long: `Translate a query and execute the plan against a SQLite object table.

Objects are read from a YAML file holding a list of objects keyed by
property name. Without --db the table lives in memory; with --db the
objects are appended to the database file, and --objects may be omitted
to query what an earlier run stored.

Examples:
  sensorq run --objects sensors.yaml 'Where(s.Status == Down).Count()'
  sensorq run --db ./sensors.db --objects sensors.yaml 'OrderBy(s.Name)'
  sensorq run --db ./sensors.db 'Where(s.Priority > 3)' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Objects, "objects", "", "YAML file with the objects to load")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: in memory)")

	return cmd
}

func runQuery(opts *RunOptions, query string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, formatter.GetErrWriter())

	if opts.Objects == "" && opts.Database == "" {
		return formatter.Fail(ExitCommandError, "nothing to query", fmt.Errorf("--objects or --db is required"))
	}

	sess, err := openSession(opts.RootOptions, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load catalog", err)
	}

	var objects []any
	if opts.Objects != "" {
		objects, err = loadObjects(opts.Objects, sess.typ)
		if err != nil {
			return formatter.Fail(ExitCommandError, "failed to load objects", err)
		}
	}

	path := opts.Database
	if path == "" {
		path = store.Memory
	}
	st, err := store.Open(path, sess.catalog)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open store", err)
	}
	defer st.Close()

	if len(objects) > 0 {
		if err := st.Load(ctx, sess.typ.Name, objects); err != nil {
			return formatter.Fail(ExitCommandError, "failed to load objects", err)
		}
		formatter.VerboseLog("Loaded %d %s object(s) from %s", len(objects), sess.typ.Name, opts.Objects)
	}

	plan, err := sess.translate(ctx, query)
	if err != nil {
		return reportTranslateError(formatter, err)
	}

	var fetched atomic.Int64
	counting := executor.FetcherFunc(func(ctx context.Context, element string, req translate.Request) ([]any, error) {
		objs, err := st.Fetch(ctx, element, req)
		fetched.Add(int64(len(objs)))
		return objs, err
	})

	exec := executor.New(counting,
		executor.WithConcurrency(opts.Concurrent),
		executor.WithLogger(logger))
	value, err := exec.Execute(ctx, plan)
	if err != nil {
		return formatter.Fail(ExitFailure, "execution failed", err)
	}

	if opts.Format == "json" {
		return formatter.PlanSuccess(plan.ID, RunResult{
			Requests: len(plan.Requests),
			Fetched:  int(fetched.Load()),
			Value:    value,
		})
	}

	w := formatter.Writer
	if seq, ok := value.([]any); ok {
		for _, item := range seq {
			fmt.Fprintln(w, formatItem(sess.typ, item))
		}
		fmt.Fprintf(w, "(%d result(s), %d fetched in %d request(s))\n", len(seq), fetched.Load(), len(plan.Requests))
		return nil
	}
	fmt.Fprintln(w, formatItem(sess.typ, value))
	return nil
}

// loadObjects reads a YAML list of objects of typ.
func loadObjects(path string, typ *catalog.Type) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read objects file: %w", err)
	}

	var raw []map[string]any
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	objects := make([]any, len(raw))
	for i, obj := range raw {
		converted, err := harness.ObjectFromYAML(typ, obj)
		if err != nil {
			return nil, fmt.Errorf("objects[%d]: %w", i, err)
		}
		objects[i] = converted
	}
	return objects, nil
}

// formatItem renders an object of typ as "Name=value ..." in property
// order, omitting nulls. Other values use their literal form.
func formatItem(typ *catalog.Type, v any) string {
	if _, isObject := v.(map[string]any); !isObject {
		return expr.FormatValue(v)
	}

	var parts []string
	for _, prop := range typ.Properties() {
		member, err := eval.Member(v, prop.Name)
		if err != nil || eval.IsNull(member) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", prop.Name, expr.FormatValue(member)))
	}
	return strings.Join(parts, " ")
}
