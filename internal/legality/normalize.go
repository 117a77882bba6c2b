package legality

import "github.com/roach88/sensorq/internal/expr"

// Normalize pushes negations through && and || (De Morgan) and removes
// double negations, so that every ! applies directly to a leaf. Sub-trees
// without negations are returned unchanged.
func Normalize(e expr.Expr) expr.Expr {
	switch n := e.(type) {
	case *expr.Unary:
		if n.Op == expr.OpNot {
			return negate(n.Operand)
		}
	case *expr.Binary:
		if n.Op == expr.OpAndAlso || n.Op == expr.OpOrElse {
			l, r := Normalize(n.Left), Normalize(n.Right)
			if l == n.Left && r == n.Right {
				return e
			}
			return expr.Bin(n.Op, l, r)
		}
	}
	return e
}

func negate(e expr.Expr) expr.Expr {
	switch n := e.(type) {
	case *expr.Unary:
		if n.Op == expr.OpNot {
			return Normalize(n.Operand)
		}
	case *expr.Binary:
		switch n.Op {
		case expr.OpAndAlso:
			return expr.Or(negate(n.Left), negate(n.Right))
		case expr.OpOrElse:
			return expr.And(negate(n.Left), negate(n.Right))
		}
	}
	return expr.Not(e)
}
