package query

import (
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

/*
In-memory evaluation of predicates, mirroring the SQLite translation. The
memory store uses this; it also backs predicate unit tests, which assert
that both execution paths agree on the same inputs.
*/

////////////////////////////////////////////////////////////////////////////////

// Matches reports whether the JSON body satisfies the predicate. A nil
// predicate matches everything. Malformed bodies match nothing.
func Matches(n Node, body []byte) bool {
	if n == nil {
		return true
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false
	}
	return eval(n, parsed)
}

func eval(n Node, body any) bool {
	switch node := n.(type) {
	case CmpNode:
		value, ok := lookup(body, node.Field)
		if !ok {
			return false
		}
		return compare(node.Op, value, node.Value)
	case AndNode:
		for _, child := range node.Children {
			if !eval(child, body) {
				return false
			}
		}
		return true
	case OrNode:
		for _, child := range node.Children {
			if eval(child, body) {
				return true
			}
		}
		return false
	case NotNode:
		return !eval(node.Child, body)
	case ExistsNode:
		_, ok := lookup(body, node.Field)
		return ok
	default:
		return false
	}
}

func lookup(body any, field string) (any, bool) {
	cur := body
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compare(op CmpOp, actual, expected any) bool {
	if op == OpLike {
		s, ok := actual.(string)
		pattern, pok := expected.(string)
		if !ok || !pok {
			return false
		}
		return likeMatch(pattern, s)
	}
	if an, aok := asFloat(actual); aok {
		if en, eok := asFloat(expected); eok {
			return cmpOrdered(op, floatCompare(an, en))
		}
		return false
	}
	if as, ok := actual.(string); ok {
		if es, ok := expected.(string); ok {
			return cmpOrdered(op, strings.Compare(as, es))
		}
		return false
	}
	if ab, ok := actual.(bool); ok {
		if eb, ok := expected.(bool); ok {
			switch op {
			case OpEq:
				return ab == eb
			case OpNe:
				return ab != eb
			}
		}
		return false
	}
	return false
}

func floatCompare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpOrdered(op CmpOp, c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// likeMatch implements SQL LIKE semantics: % matches any run, _ matches one
// character, matching is case-insensitive as in SQLite.
func likeMatch(pattern, s string) bool {
	var sb strings.Builder
	sb.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
