package expr

// NewSource creates a root collection node.
func NewSource(name, element string) *Source {
	return &Source{Name: name, Element: element}
}

// P creates a parameter.
func P(name string) *Param {
	return &Param{Name: name}
}

// C creates a constant. Go integer kinds are widened to int64 and float32 to
// float64 so that constants compare uniformly.
func C(v any) *Const {
	return &Const{Value: normalizeConst(v)}
}

// M creates a member access.
func M(target Expr, name string) *Member {
	return &Member{Target: target, Name: name}
}

// Bin creates a binary expression.
func Bin(op BinaryOp, left, right Expr) *Binary {
	return &Binary{Op: op, Left: left, Right: right}
}

func Eq(l, r Expr) *Binary  { return Bin(OpEqual, l, r) }
func Ne(l, r Expr) *Binary  { return Bin(OpNotEqual, l, r) }
func Lt(l, r Expr) *Binary  { return Bin(OpLess, l, r) }
func Le(l, r Expr) *Binary  { return Bin(OpLessEqual, l, r) }
func Gt(l, r Expr) *Binary  { return Bin(OpGreater, l, r) }
func Ge(l, r Expr) *Binary  { return Bin(OpGreaterEqual, l, r) }
func And(l, r Expr) *Binary { return Bin(OpAndAlso, l, r) }
func Or(l, r Expr) *Binary  { return Bin(OpOrElse, l, r) }

// Not creates a logical negation.
func Not(operand Expr) *Unary {
	return &Unary{Op: OpNot, Operand: operand}
}

// MethodCall creates an instance method call.
func MethodCall(target Expr, method string, args ...Expr) *Call {
	return &Call{Target: target, Method: method, Args: args}
}

// StaticCall creates a static method call such as Object.Equals(a, b).
func StaticCall(typ, method string, args ...Expr) *Call {
	return &Call{Static: typ, Method: method, Args: args}
}

// Fn creates a single-parameter lambda.
func Fn(p *Param, body Expr) *Lambda {
	return &Lambda{Params: []*Param{p}, Body: body}
}

// Fn2 creates a two-parameter lambda.
func Fn2(a, b *Param, body Expr) *Lambda {
	return &Lambda{Params: []*Param{a, b}, Body: body}
}

func normalizeConst(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
