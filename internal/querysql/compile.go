package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/sensorq/internal/catalog"
	"github.com/roach88/sensorq/internal/predicate"
	"github.com/roach88/sensorq/internal/querynode"
	"github.com/roach88/sensorq/internal/translate"
)

// Table is the object table read by compiled queries. Each row holds one
// object of one element type; data is a JSON object keyed by server
// property ID.
const Table = "objects"

// SQLCompiler compiles server requests to parameterized SQL for SQLite.
//
// Every query orders by seq last so results are deterministic. All values,
// including JSON paths, are parameterized (never interpolated).
type SQLCompiler struct {
	typ *catalog.Type
}

// NewSQLCompiler creates a compiler for requests against objects of typ.
func NewSQLCompiler(typ *catalog.Type) *SQLCompiler {
	return &SQLCompiler{typ: typ}
}

// Compile converts a request to parameterized SQL selecting the seq of each
// matching row. Returns (sql, params, error) tuple.
//
// Conditions on different properties are AND-ed; conditions on the same
// property are OR-ed, in the order the property first appears.
func (c *SQLCompiler) Compile(req translate.Request) (string, []any, error) {
	if c.typ == nil {
		return "", nil, fmt.Errorf("cannot compile request without element type")
	}

	var b strings.Builder
	params := []any{c.typ.Name}
	fmt.Fprintf(&b, "SELECT seq FROM %s WHERE kind = ?", Table)

	for _, group := range groupByProperty(req.Filters) {
		sql, groupParams, err := c.compileGroup(group)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" AND ")
		b.WriteString(sql)
		params = append(params, groupParams...)
	}

	b.WriteString(" ORDER BY ")
	if req.Sort != nil {
		dir := "ASC"
		if req.Sort.Direction == querynode.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, "json_extract(data, ?) %s, ", dir)
		params = append(params, jsonPath(req.Sort.Property))
	}
	b.WriteString("seq ASC")

	switch {
	case req.Paging.Take != nil:
		b.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, int64(*req.Paging.Take), int64(req.Paging.Skip))
	case req.Paging.Skip > 0:
		// SQLite requires a LIMIT before OFFSET; -1 means no limit.
		b.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, int64(req.Paging.Skip))
	}

	return b.String(), params, nil
}

// groupByProperty partitions conditions by property ID, keeping the order in
// which each property first appears.
func groupByProperty(conds []translate.Condition) [][]translate.Condition {
	var groups [][]translate.Condition
	index := make(map[string]int)
	for _, cond := range conds {
		i, ok := index[cond.Property]
		if !ok {
			i = len(groups)
			index[cond.Property] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], cond)
	}
	return groups
}

func (c *SQLCompiler) compileGroup(group []translate.Condition) (string, []any, error) {
	parts := make([]string, 0, len(group))
	var params []any
	for _, cond := range group {
		sql, condParams, err := c.compileCondition(cond)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, condParams...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", params, nil
}

func (c *SQLCompiler) compileCondition(cond translate.Condition) (string, []any, error) {
	prop, ok := c.typ.PropertyByID(cond.Property)
	if !ok {
		return "", nil, fmt.Errorf("type %s has no property with id %q", c.typ.Name, cond.Property)
	}
	value, err := toParam(cond.Value)
	if err != nil {
		return "", nil, fmt.Errorf("condition %s: %w", cond, err)
	}

	column := "json_extract(data, ?)"
	if _, isString := value.(string); isString && renderedAsText(prop) {
		// Compared through its string rendering.
		column = "CAST(json_extract(data, ?) AS TEXT)"
	}
	path := jsonPath(cond.Property)

	switch cond.Operator {
	case predicate.Equals:
		return column + " = ?", []any{path, value}, nil
	case predicate.NotEquals:
		// A missing value is never equal to anything.
		return fmt.Sprintf("(%s IS NULL OR %s <> ?)", column, column), []any{path, path, value}, nil
	case predicate.LessThan:
		return column + " < ?", []any{path, value}, nil
	case predicate.GreaterThan:
		return column + " > ?", []any{path, value}, nil
	case predicate.Contains:
		return fmt.Sprintf("instr(%s, ?) > 0", column), []any{path, value}, nil
	default:
		return "", nil, fmt.Errorf("unsupported operator %q", cond.Operator)
	}
}

// renderedAsText reports whether a string value compared against prop
// targets the text rendering of a non-text column.
func renderedAsText(prop *catalog.Property) bool {
	switch prop.Kind {
	case catalog.KindInt, catalog.KindFloat, catalog.KindBool:
		return true
	}
	return false
}

func jsonPath(id string) string {
	return `$."` + id + `"`
}

// toParam converts a condition value to a SQLite parameter using the same
// representation the store writes.
func toParam(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null values cannot be compared")
	case catalog.EnumValue:
		return val.Ordinal, nil
	case time.Time:
		return val.UTC().Format(time.RFC3339), nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case string, int64, float64:
		return val, nil
	case int:
		return int64(val), nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}
