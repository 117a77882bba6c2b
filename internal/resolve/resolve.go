// Package resolve maps member accesses on a query's element parameter to
// server-side properties.
package resolve

import (
	"github.com/roach88/sensorq/internal/catalog"
	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/qerr"
)

// Resolver resolves member accesses against one element type. Resolution is
// structural and driven by catalog metadata only; no values are read.
type Resolver struct {
	cat *catalog.Catalog
	typ *catalog.Type
}

// New creates a resolver for elements of typ. cat is consulted to follow
// object-valued properties into their element types and may be nil.
func New(cat *catalog.Catalog, typ *catalog.Type) *Resolver {
	return &Resolver{cat: cat, typ: typ}
}

// Type returns the element type.
func (r *Resolver) Type() *catalog.Type {
	return r.typ
}

// Catalog returns the catalog the resolver follows object properties through.
func (r *Resolver) Catalog() *catalog.Catalog {
	return r.cat
}

// Resolve returns a PropertyReference for e if e is a direct member access on
// the parameter named param that maps to a property of the element type.
// Nested accesses (s.Parent.Name) are not server properties of the element
// and fail with KindPropertyNotQueryable.
func (r *Resolver) Resolve(e expr.Expr, param string) (*expr.PropertyRef, *catalog.Property, error) {
	if ref, ok := e.(*expr.PropertyRef); ok {
		prop, found := r.typ.PropertyByID(ref.ID)
		if !found {
			return nil, nil, notQueryable(e, "%s is not a property of %s", ref.ID, r.typ.Name)
		}
		return ref, prop, nil
	}

	m, ok := e.(*expr.Member)
	if !ok {
		return nil, nil, notQueryable(e, "expression is not a member access")
	}

	switch target := expr.Unwrap(m.Target).(type) {
	case *expr.Param:
		if target.Name != param {
			return nil, nil, notQueryable(e, "member %s is not accessed on the element parameter %s", m.Name, param)
		}
	case *expr.Member:
		return nil, nil, notQueryable(e, "nested member %s is not a server property of %s", m.Name, r.typ.Name)
	default:
		return nil, nil, notQueryable(e, "member %s is not accessed on the element parameter %s", m.Name, param)
	}

	prop, found := r.typ.Property(m.Name)
	if !found {
		return nil, nil, notQueryable(e, "%s has no property %s", r.typ.Name, m.Name)
	}
	return &expr.PropertyRef{Expr: m, ID: prop.ID, Name: prop.Name}, prop, nil
}

// Lookup returns the catalog property a member chain rooted at param ends
// in, following object-valued properties into their element types.
func (r *Resolver) Lookup(e expr.Expr, param string) (*catalog.Property, bool) {
	switch n := e.(type) {
	case *expr.PropertyRef:
		return r.Lookup(expr.Unwrap(n), param)
	case *expr.Member:
		owner, ok := r.ownerType(expr.Unwrap(n.Target), param)
		if !ok {
			return nil, false
		}
		return owner.Property(n.Name)
	}
	return nil, false
}

// ownerType returns the element type whose member e is accessing.
func (r *Resolver) ownerType(e expr.Expr, param string) (*catalog.Type, bool) {
	switch n := e.(type) {
	case *expr.Param:
		if n.Name != param {
			return nil, false
		}
		return r.typ, true
	case *expr.Member:
		prop, ok := r.Lookup(n, param)
		if !ok || prop.Kind != catalog.KindObject || r.cat == nil {
			return nil, false
		}
		return r.cat.Type(prop.Elem)
	}
	return nil, false
}

// Annotate returns a copy of e in which every direct member access on param
// that maps to a property is wrapped in a PropertyReference. Unresolvable
// accesses are left as they are.
func (r *Resolver) Annotate(e expr.Expr, param string) expr.Expr {
	out, err := expr.Rewrite(e, func(n expr.Expr) (expr.Expr, error) {
		if ref, ok := n.(*expr.PropertyRef); ok {
			if inner, nested := ref.Expr.(*expr.PropertyRef); nested {
				return inner, nil
			}
			return n, nil
		}
		m, ok := n.(*expr.Member)
		if !ok {
			return n, nil
		}
		if ref, _, err := r.Resolve(m, param); err == nil {
			return ref, nil
		}
		return n, nil
	})
	if err != nil {
		return e
	}
	return out
}

// Columns returns the IDs of the properties referenced in e, in first-use
// order without duplicates.
func Columns(e expr.Expr) []string {
	var out []string
	seen := make(map[string]bool)
	expr.Walk(e, func(n expr.Expr) bool {
		if ref, ok := n.(*expr.PropertyRef); ok && !seen[ref.ID] {
			seen[ref.ID] = true
			out = append(out, ref.ID)
		}
		return true
	})
	return out
}

func notQueryable(e expr.Expr, format string, args ...any) error {
	return qerr.New(qerr.KindPropertyNotQueryable, expr.Format(e), "property not queryable: "+format, args...)
}
