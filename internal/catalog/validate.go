package catalog

import (
	"errors"
	"fmt"
)

// Validate checks cross-references the CUE schema cannot express.
// Returns all problems found, in type/property declaration order.
func Validate(c *Catalog) []*LoadError {
	var errs []*LoadError

	for _, name := range c.EnumNames() {
		e, _ := c.Enum(name)
		if len(e.Values) == 0 {
			errs = append(errs, &LoadError{
				Code:    ErrCodeEmptyEnum,
				Message: fmt.Sprintf("enum %s has no values", name),
			})
		}
	}

	for _, name := range c.TypeNames() {
		t, _ := c.Type(name)
		seen := make(map[string]string)

		for _, p := range t.Properties() {
			if prev, dup := seen[p.ID]; dup {
				errs = append(errs, &LoadError{
					Code:    ErrCodeDuplicateID,
					Message: fmt.Sprintf("%s: properties %s and %s share server id %q", name, prev, p.Name, p.ID),
				})
			}
			seen[p.ID] = p.Name

			switch p.Kind {
			case KindEnum:
				if _, ok := c.Enum(p.Enum); !ok {
					errs = append(errs, &LoadError{
						Code:    ErrCodeUnknownEnum,
						Message: fmt.Sprintf("%s.%s: unknown enum %q", name, p.Name, p.Enum),
					})
				}
			case KindList, KindObject:
				if p.Elem == "" {
					errs = append(errs, &LoadError{
						Code:    ErrCodeMissingElem,
						Message: fmt.Sprintf("%s.%s: %s property requires elem", name, p.Name, p.Kind),
					})
				}
			}
		}

		if t.Identity != "" {
			if _, ok := t.Property(t.Identity); !ok {
				errs = append(errs, &LoadError{
					Code:    ErrCodeIdentity,
					Message: fmt.Sprintf("%s: identity %q is not a property", name, t.Identity),
				})
			}
		}
	}

	return errs
}

// LoadErrors returns every *LoadError in err, including each member of an
// error joined by Compile or LoadDir.
func LoadErrors(err error) []*LoadError {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*LoadError
		for _, e := range joined.Unwrap() {
			out = append(out, LoadErrors(e)...)
		}
		return out
	}
	var le *LoadError
	if errors.As(err, &le) {
		return []*LoadError{le}
	}
	return nil
}
