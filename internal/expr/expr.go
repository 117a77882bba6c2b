package expr

// Expr is the sealed interface for expression nodes.
// Only types in this package implement it.
type Expr interface {
	exprNode()
}

// Source is the root collection of a query chain.
type Source struct {
	// Name identifies the collection (e.g. "Sensors").
	Name string

	// Element is the catalog type name of the collection's elements.
	Element string
}

func (*Source) exprNode() {}

// Param is a lambda parameter. Parameters are bound by name.
type Param struct {
	Name string
}

func (*Param) exprNode() {}

// Const is a literal value.
type Const struct {
	Value any
}

func (*Const) exprNode() {}

// Member is a member access on Target.
type Member struct {
	Target Expr
	Name   string
}

func (*Member) exprNode() {}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpEqual BinaryOp = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAndAlso
	OpOrElse
	OpAdd
	OpSub
	OpMul
	OpDiv

	// OpBoxedEqual compares two values after unboxing, treating two nulls as
	// equal and a null against a non-null as unequal.
	OpBoxedEqual
)

var binaryOpText = map[BinaryOp]string{
	OpEqual:        "==",
	OpNotEqual:     "!=",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
	OpAndAlso:      "&&",
	OpOrElse:       "||",
	OpAdd:          "+",
	OpSub:          "-",
	OpMul:          "*",
	OpDiv:          "/",
	OpBoxedEqual:   "===",
}

// String returns the operator's source form.
func (op BinaryOp) String() string {
	if s, ok := binaryOpText[op]; ok {
		return s
	}
	return "?"
}

// IsComparison reports whether op is one of the six relational operators.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEqual && op <= OpGreaterEqual
}

// Mirror returns the operator that gives the same result with operands
// swapped (a < b is b > a).
func (op BinaryOp) Mirror() BinaryOp {
	switch op {
	case OpLess:
		return OpGreater
	case OpGreater:
		return OpLess
	case OpLessEqual:
		return OpGreaterEqual
	case OpGreaterEqual:
		return OpLessEqual
	default:
		return op
	}
}

// Binary applies a binary operator.
type Binary struct {
	Op          BinaryOp
	Left, Right Expr
}

func (*Binary) exprNode() {}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
)

// String returns the operator's source form.
func (op UnaryOp) String() string {
	if op == OpNot {
		return "!"
	}
	return "-"
}

// Unary applies a unary operator.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

func (*Unary) exprNode() {}

// Call is a method call. Instance calls set Target; static calls leave it
// nil and name the declaring type in Static (Object.Equals).
type Call struct {
	Target Expr
	Static string
	Method string
	Args   []Expr
}

func (*Call) exprNode() {}

// IsStatic reports whether the call has no receiver.
func (c *Call) IsStatic() bool {
	return c.Target == nil
}

// Lambda is a function literal.
type Lambda struct {
	Params []*Param
	Body   Expr
}

func (*Lambda) exprNode() {}

// PropertyRef stands in for a member access that resolved to a server
// property. Expr is the access it replaces; evaluation is identical to Expr.
type PropertyRef struct {
	Expr Expr

	// ID is the server-side property identifier.
	ID string

	// Name is the member name on the element type.
	Name string
}

func (*PropertyRef) exprNode() {}

// NullBehavior selects what a Guard yields when its receiver is null.
type NullBehavior int

const (
	// NullRaise fails evaluation with a null-reference error.
	NullRaise NullBehavior = iota

	// NullFalse yields false.
	NullFalse

	// NullNil yields null (conditional access).
	NullNil
)

// String returns the behavior name used in formatted output.
func (b NullBehavior) String() string {
	switch b {
	case NullFalse:
		return "false"
	case NullNil:
		return "null"
	default:
		return "raise"
	}
}

// Guard evaluates Receiver and, if it is null, applies OnNull instead of
// evaluating Body. Body normally contains Receiver.
type Guard struct {
	Receiver Expr
	Body     Expr
	OnNull   NullBehavior
}

func (*Guard) exprNode() {}
