package query

import (
	"fmt"
	"strings"
)

/*
Translation of the predicate AST to SQLite expressions over the documents
table. Body fields are addressed with json_extract; field paths are passed
as bound parameters rather than spliced into the SQL text, so user-supplied
field names can never escape the JSON path position.
*/

////////////////////////////////////////////////////////////////////////////////

// ToSQL renders a predicate to a SQLite boolean expression over a column
// named body, returning the expression and its bound arguments. A nil
// predicate renders to a tautology.
func ToSQL(n Node) (string, []any, error) {
	if n == nil {
		return "1 = 1", nil, nil
	}
	switch node := n.(type) {
	case CmpNode:
		return cmpToSQL(node)
	case AndNode:
		return joinToSQL(node.Children, " and ")
	case OrNode:
		return joinToSQL(node.Children, " or ")
	case NotNode:
		inner, args, err := ToSQL(node.Child)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("not (%s)", inner), args, nil
	case ExistsNode:
		return "json_type(body, ?) is not null", []any{jsonPath(node.Field)}, nil
	default:
		return "", nil, fmt.Errorf("unrecognized predicate node %T", n)
	}
}

func cmpToSQL(node CmpNode) (string, []any, error) {
	args := []any{jsonPath(node.Field), node.Value}
	switch node.Op {
	case OpEq:
		return "json_extract(body, ?) = ?", args, nil
	case OpNe:
		return "json_extract(body, ?) != ?", args, nil
	case OpLt:
		return "json_extract(body, ?) < ?", args, nil
	case OpLte:
		return "json_extract(body, ?) <= ?", args, nil
	case OpGt:
		return "json_extract(body, ?) > ?", args, nil
	case OpGte:
		return "json_extract(body, ?) >= ?", args, nil
	case OpLike:
		if _, ok := node.Value.(string); !ok {
			return "", nil, fmt.Errorf("operator ~ requires a string pattern, got %T", node.Value)
		}
		return "json_extract(body, ?) like ?", args, nil
	default:
		return "", nil, fmt.Errorf("unrecognized comparison operator %q", node.Op)
	}
}

func joinToSQL(children []Node, sep string) (string, []any, error) {
	if len(children) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(children))
	var args []any
	for _, child := range children {
		sql, childArgs, err := ToSQL(child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		args = append(args, childArgs...)
	}
	return strings.Join(parts, sep), args, nil
}

func jsonPath(field string) string {
	return "$." + field
}

// OrderBySQL renders an order-by target for QueryDocuments. An empty field
// orders by primary key.
func OrderBySQL(field string) (string, []any) {
	if field == "" {
		return "key", nil
	}
	return "json_extract(body, ?)", []any{jsonPath(field)}
}
