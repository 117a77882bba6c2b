package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/sensorq/internal/catalog"
	"github.com/roach88/sensorq/internal/harness"
	"github.com/roach88/sensorq/internal/querytext"
	"github.com/roach88/sensorq/internal/testutil"
	"github.com/roach88/sensorq/internal/translate"
)

// session is the catalog and translator shared by explain and run.
type session struct {
	opts       *RootOptions
	catalog    *catalog.Catalog
	typ        *catalog.Type
	translator *translate.Translator
}

// openSession loads the configured catalog and builds a translator.
// Failures are command errors.
func openSession(opts *RootOptions, logger *slog.Logger) (*session, error) {
	cat, err := loadCatalog(opts.Catalog)
	if err != nil {
		return nil, err
	}
	if opts.Type == "" {
		return nil, fmt.Errorf("no element type: set --type or type in the config file")
	}
	typ, ok := cat.Type(opts.Type)
	if !ok {
		return nil, fmt.Errorf("catalog has no type %q (types: %v)", opts.Type, cat.TypeNames())
	}

	trOpts := []translate.Option{
		translate.WithStrict(opts.Strict),
		translate.WithLogger(logger),
	}
	if opts.MaxRequests > 0 {
		trOpts = append(trOpts, translate.WithMaxRequests(opts.MaxRequests))
	}

	return &session{
		opts:       opts,
		catalog:    cat,
		typ:        typ,
		translator: translate.New(cat, trOpts...),
	}, nil
}

// loadCatalog returns the built-in sample catalog or loads a CUE catalog.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" || path == harness.SampleCatalog {
		return testutil.SampleCatalog(), nil
	}
	return catalog.LoadDir(path)
}

// source returns the collection name, defaulting to the element type.
func (s *session) source() string {
	if s.opts.Source != "" {
		return s.opts.Source
	}
	return s.typ.Name
}

// translate parses and translates a query. A parse failure is wrapped in
// an ExitError with ExitCommandError; translation errors are returned as
// they are.
func (s *session) translate(ctx context.Context, query string) (*translate.Plan, error) {
	q, err := querytext.Parse(query, querytext.Options{
		Source:  s.source(),
		Element: s.typ.Name,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse query", err)
	}
	return s.translator.Translate(ctx, q)
}

// reportTranslateError reports a failure of session.translate with the
// matching exit code.
func reportTranslateError(f *OutputFormatter, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return f.Fail(exitErr.Code, exitErr.Message, exitErr.Err)
	}
	return f.Fail(ExitFailure, "translation failed", err)
}
