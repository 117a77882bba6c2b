package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// Load error codes.
const (
	ErrCodeGeneric     = "C001" // Generic/unknown error
	ErrCodeNotFound    = "C002" // Path not found
	ErrCodeNoFiles     = "C003" // No CUE files found
	ErrCodeLoadFailed  = "C004" // CUE load failed
	ErrCodeSchema      = "C005" // Value does not satisfy #Catalog
	ErrCodeUnknownEnum = "C101" // Enum property references an undeclared enum
	ErrCodeDuplicateID = "C102" // Two properties share a server ID
	ErrCodeIdentity    = "C103" // Identity names no property
	ErrCodeMissingElem = "C104" // List/object property without elem
	ErrCodeEmptyEnum   = "C105" // Enum without values
)

// LoadError is a catalog loading or validation error with source position.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Compile parses a catalog from CUE source text.
//
// Example:
//
//	cat, err := catalog.Compile("sensors.cue", src)
func Compile(filename, src string) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(ErrCodeLoadFailed, err)
	}
	return fromValue(ctx, v)
}

// LoadDir loads every .cue file in dir as one CUE instance and compiles the
// result. Catalog files carry no package clause. A path to a single .cue
// file is also accepted.
func LoadDir(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing catalog: %v", err)}
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading catalog: %v", err)}
		}
		return Compile(path, string(data))
	}

	files, err := filepath.Glob(filepath.Join(path, "*.cue"))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("scanning catalog directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path, Package: "_"})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(ErrCodeLoadFailed, inst.Err)
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(ErrCodeLoadFailed, err)
	}
	return fromValue(ctx, v)
}

// fromValue validates v against #Catalog and builds the Go catalog.
func fromValue(ctx *cue.Context, v cue.Value) (*Catalog, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Catalog")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}

	enums, err := compileEnums(unified.LookupPath(cue.ParsePath("enums")))
	if err != nil {
		return nil, err
	}
	types, err := compileTypes(unified.LookupPath(cue.ParsePath("types")))
	if err != nil {
		return nil, err
	}

	cat := New(types, enums)
	if errs := Validate(cat); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, errors.Join(joined...)
	}
	return cat, nil
}

func compileEnums(v cue.Value) ([]*Enum, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(ErrCodeGeneric, err)
	}

	var enums []*Enum
	for iter.Next() {
		e := &Enum{Name: iter.Label()}
		valIter, err := iter.Value().LookupPath(cue.ParsePath("values")).Fields()
		if err != nil {
			return nil, formatCUEError(ErrCodeGeneric, err)
		}
		for valIter.Next() {
			n, err := valIter.Value().Int64()
			if err != nil {
				return nil, formatCUEError(ErrCodeSchema, err)
			}
			e.Values = append(e.Values, EnumValue{Type: e.Name, Name: valIter.Label(), Ordinal: n})
		}
		sort.SliceStable(e.Values, func(i, j int) bool { return e.Values[i].Ordinal < e.Values[j].Ordinal })
		enums = append(enums, e)
	}
	return enums, nil
}

func compileTypes(v cue.Value) ([]*Type, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(ErrCodeGeneric, err)
	}

	var types []*Type
	for iter.Next() {
		name := iter.Label()
		tv := iter.Value()

		identity, err := optionalString(tv, "identity")
		if err != nil {
			return nil, err
		}

		propIter, err := tv.LookupPath(cue.ParsePath("properties")).Fields()
		if err != nil {
			return nil, formatCUEError(ErrCodeGeneric, err)
		}
		var props []*Property
		for propIter.Next() {
			p, err := compileProperty(propIter.Label(), propIter.Value())
			if err != nil {
				return nil, err
			}
			props = append(props, p)
		}
		types = append(types, NewType(name, identity, props...))
	}
	return types, nil
}

func compileProperty(name string, v cue.Value) (*Property, error) {
	id, err := v.LookupPath(cue.ParsePath("id")).String()
	if err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}
	kind, err := v.LookupPath(cue.ParsePath("kind")).String()
	if err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}

	p := &Property{Name: name, ID: id, Kind: Kind(kind)}
	if p.Enum, err = optionalString(v, "enum"); err != nil {
		return nil, err
	}
	if p.Elem, err = optionalString(v, "elem"); err != nil {
		return nil, err
	}

	scalar := p.Kind.IsScalar()
	if p.Nullable, err = optionalBool(v, "nullable", false); err != nil {
		return nil, err
	}
	if p.Filterable, err = optionalBool(v, "filterable", scalar); err != nil {
		return nil, err
	}
	if p.Sortable, err = optionalBool(v, "sortable", scalar); err != nil {
		return nil, err
	}
	if p.Stringer, err = optionalBool(v, "stringer", false); err != nil {
		return nil, err
	}
	return p, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(ErrCodeSchema, err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string, def bool) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(ErrCodeSchema, err)
	}
	return b, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(code string, err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}

	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
