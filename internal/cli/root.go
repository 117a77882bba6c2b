package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	Catalog     string
	Type        string
	Source      string
	Strict      bool
	MaxRequests int
	Concurrent  int
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sensorq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	defaults := DefaultConfig()

	cmd := &cobra.Command{
		Use:   "sensorq",
		Short: "sensorq - query translation for sensor object tables",
		Long: `Translate fluent sensor queries into server filter requests plus a
local residual, and run them against an object table.

Global flags fall back to a TOML config file (--config, or sensorq.toml in
the working directory), then to built-in defaults.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfig(cmd, opts); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", defaults.Format, "output format (json|text)")
	flags.StringVar(&opts.ConfigPath, "config", "", "path to TOML config file")
	flags.StringVar(&opts.Catalog, "catalog", defaults.Catalog, `CUE catalog file or directory ("sample" for the built-in catalog)`)
	flags.StringVar(&opts.Type, "type", defaults.Type, "element type queried")
	flags.StringVar(&opts.Source, "source", defaults.Source, "name of the queried collection")
	flags.BoolVar(&opts.Strict, "strict", defaults.Strict, "refuse queries that cannot be translated exactly")
	flags.IntVar(&opts.MaxRequests, "max-requests", defaults.MaxRequests, "maximum requests an OR split may produce (0 for the default)")
	flags.IntVar(&opts.Concurrent, "concurrent", defaults.Concurrent, "requests fetched in parallel")

	// Add subcommands
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(stderr, err)
	}
	return GetExitCode(err)
}

// applyConfig fills every global flag the user did not set from the config
// file, when there is one.
func applyConfig(cmd *cobra.Command, opts *RootOptions) error {
	path := findConfig(opts.ConfigPath)
	if path == "" {
		return nil
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("catalog") {
		opts.Catalog = cfg.Catalog
	}
	if !flags.Changed("type") {
		opts.Type = cfg.Type
	}
	if !flags.Changed("source") {
		opts.Source = cfg.Source
	}
	if !flags.Changed("strict") {
		opts.Strict = cfg.Strict
	}
	if !flags.Changed("format") {
		opts.Format = cfg.Format
	}
	if !flags.Changed("concurrent") {
		opts.Concurrent = cfg.Concurrent
	}
	if !flags.Changed("max-requests") {
		opts.MaxRequests = cfg.MaxRequests
	}
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newLogger returns the logger for translation and execution. Records go
// to w; debug records only with --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}
