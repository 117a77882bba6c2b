package catalog

import (
	"sort"
)

// Kind classifies the value held by a property.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindEnum   Kind = "enum"
	KindTime   Kind = "time"
	KindList   Kind = "list"
	KindObject Kind = "object"
)

// IsScalar reports whether values of this kind are single comparable values.
func (k Kind) IsScalar() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindEnum, KindTime:
		return true
	}
	return false
}

// IsNumeric reports whether the kind is int or float.
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindFloat
}

// Property describes one member of an element type.
type Property struct {
	// Name is the member name used in expressions (s.Name).
	Name string

	// ID is the server-side property identifier.
	ID string

	Kind Kind

	// Enum names the enum type when Kind is KindEnum.
	Enum string

	// Elem names the element type for lists and objects.
	Elem string

	// Nullable is true if the server may omit the value.
	Nullable bool

	// Filterable is false for properties the server refuses to filter on.
	Filterable bool

	// Sortable is false for properties the server refuses to sort on.
	Sortable bool

	// Stringer marks values whose local string rendering matches the
	// server's rendering.
	Stringer bool
}

// Pushable reports whether the property may appear in a server filter.
// Non-scalar properties qualify only through their string rendering.
func (p *Property) Pushable() bool {
	return p.Filterable && (p.Kind.IsScalar() || p.Stringer)
}

// CanSort reports whether the property may be used as the server sort key.
func (p *Property) CanSort() bool {
	return p.Sortable && p.Kind.IsScalar()
}

// MayBeNull reports whether a value read from this property may be null.
// Strings, lists and objects are references and may always be absent.
func (p *Property) MayBeNull() bool {
	switch p.Kind {
	case KindString, KindList, KindObject:
		return true
	}
	return p.Nullable
}

// Type describes an element type.
type Type struct {
	Name string

	// Identity names the property used to deduplicate objects.
	Identity string

	props  []*Property
	byName map[string]*Property
	byID   map[string]*Property
}

// NewType creates a type from properties in declaration order.
func NewType(name, identity string, props ...*Property) *Type {
	t := &Type{
		Name:     name,
		Identity: identity,
		byName:   make(map[string]*Property, len(props)),
		byID:     make(map[string]*Property, len(props)),
	}
	for _, p := range props {
		t.props = append(t.props, p)
		t.byName[p.Name] = p
		if _, dup := t.byID[p.ID]; !dup {
			t.byID[p.ID] = p
		}
	}
	return t
}

// Property returns the property with the given member name.
func (t *Type) Property(name string) (*Property, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// PropertyByID returns the property with the given server identifier.
func (t *Type) PropertyByID(id string) (*Property, bool) {
	p, ok := t.byID[id]
	return p, ok
}

// Properties returns the properties in declaration order.
func (t *Type) Properties() []*Property {
	out := make([]*Property, len(t.props))
	copy(out, t.props)
	return out
}

// EnumValue is one member of an enum.
type EnumValue struct {
	Type    string
	Name    string
	Ordinal int64
}

// String returns the member name.
func (v EnumValue) String() string {
	return v.Name
}

// Enum describes an enum type.
type Enum struct {
	Name   string
	Values []EnumValue
}

// Lookup returns the member with the given name.
func (e *Enum) Lookup(name string) (EnumValue, bool) {
	for _, v := range e.Values {
		if v.Name == name {
			return v, true
		}
	}
	return EnumValue{}, false
}

// ByOrdinal returns the member with the given underlying value.
func (e *Enum) ByOrdinal(n int64) (EnumValue, bool) {
	for _, v := range e.Values {
		if v.Ordinal == n {
			return v, true
		}
	}
	return EnumValue{}, false
}

// Catalog is a set of element types and enums.
type Catalog struct {
	types map[string]*Type
	enums map[string]*Enum
}

// New creates a catalog from already-built types and enums.
func New(types []*Type, enums []*Enum) *Catalog {
	c := &Catalog{
		types: make(map[string]*Type, len(types)),
		enums: make(map[string]*Enum, len(enums)),
	}
	for _, t := range types {
		c.types[t.Name] = t
	}
	for _, e := range enums {
		c.enums[e.Name] = e
	}
	return c
}

// Type returns the element type with the given name.
func (c *Catalog) Type(name string) (*Type, bool) {
	t, ok := c.types[name]
	return t, ok
}

// Enum returns the enum with the given name.
func (c *Catalog) Enum(name string) (*Enum, bool) {
	e, ok := c.enums[name]
	return e, ok
}

// TypeNames returns all type names, sorted.
func (c *Catalog) TypeNames() []string {
	names := make([]string, 0, len(c.types))
	for n := range c.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EnumNames returns all enum names, sorted.
func (c *Catalog) EnumNames() []string {
	names := make([]string, 0, len(c.enums))
	for n := range c.enums {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
