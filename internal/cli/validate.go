package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sensorq/internal/catalog"
)

// ValidationError is one catalog problem in JSON output.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Types  []string          `json:"types,omitempty"`
	Enums  []string          `json:"enums,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog>",
		Short: "Validate a CUE catalog",
		Long: `Validate a CUE catalog file or directory.

Checks the catalog against the embedded #Catalog schema, then checks
cross-references the schema cannot express: enum references, identity
properties, element types and duplicate server property IDs.

Exit codes:
  0 - Catalog is valid
  1 - Catalog has errors
  2 - Command error (catalog not found, no CUE files)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	cat, err := catalog.LoadDir(path)
	if err != nil {
		loadErrs := catalog.LoadErrors(err)
		if len(loadErrs) == 0 {
			return formatter.Fail(ExitCommandError, "failed to load catalog", err)
		}
		switch loadErrs[0].Code {
		case catalog.ErrCodeNotFound, catalog.ErrCodeNoFiles:
			return formatter.Fail(ExitCommandError, "failed to load catalog", err)
		}
		return outputValidationErrors(formatter, loadErrs)
	}

	formatter.VerboseLog("Loaded %d type(s) and %d enum(s) from %s", len(cat.TypeNames()), len(cat.EnumNames()), path)

	if errs := catalog.Validate(cat); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	result := ValidationResult{
		Valid: true,
		Types: cat.TypeNames(),
		Enums: cat.EnumNames(),
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Catalog valid: %d type(s), %d enum(s)\n", len(result.Types), len(result.Enums))
	return nil
}

// outputValidationErrors reports catalog problems and returns exit code 1.
func outputValidationErrors(formatter *OutputFormatter, errs []*catalog.LoadError) error {
	result := ValidationResult{Valid: false}
	for _, e := range errs {
		ve := ValidationError{Code: e.Code, Message: e.Message}
		if e.Pos.IsValid() {
			ve.File = e.Pos.Filename()
			ve.Line = e.Pos.Line()
		}
		result.Errors = append(result.Errors, ve)
	}

	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: fmt.Sprintf("%d validation error(s)", len(errs)),
			},
		}); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintf(w, "✗ Validation failed with %d error(s):\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(errs)))
}
