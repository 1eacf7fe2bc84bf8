package query

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/relvacode/iso8601"
)

/*
This file contains a participle grammar for the loam filter language. The
language gives the CLI and the HTTP query endpoint an ergonomic way to state
predicates over document bodies:

	name = "Alice" and (age > 25 or exists(email)) order by age desc limit 10

A "since" clause filters on the document's last-write wall time rather than
a body field, taking an ISO 8601 timestamp literal.
*/

////////////////////////////////////////////////////////////////////////////////

var (
	options = []participle.Option{ // nolint:gochecknoglobals
		participle.Lexer(
			lexer.MustSimple([]lexer.SimpleRule{
				{Name: "Word", Pattern: `[a-zA-Z_][a-zA-Z0-9_\.]*`},
				{Name: "QuotedString", Pattern: `"(?:\\.|[^"])*"`},
				{Name: "whitespace", Pattern: `\s+`},
				{Name: "Operators", Pattern: `[()]`},
				{Name: "BinaryOperator", Pattern: `=|!=|<=|>=|<|>|~`},
				{Name: "Float", Pattern: `[-+]?\d*\.\d+([eE][-+]?\d+)?`},
				{Name: "Integer", Pattern: `[-+]?[0-9]+`},
			}),
		),
		participle.Unquote("QuotedString"),
	}

	parser = participle.MustBuild[Filter](options...) // nolint:gochecknoglobals
)

// Filter is the root of a parsed filter expression.
type Filter struct {
	Where  *Expression  `@@?`
	Since  *Since       `@@?`
	Order  *OrderClause `@@?`
	Paging []PagingTerm `@@*`
}

// Since filters on last-write wall time.
type Since struct {
	Value string `"since" @QuotedString`
}

// Millis returns the since bound as epoch milliseconds.
func (s Since) Millis() (int64, error) {
	t, err := iso8601.ParseString(s.Value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse since timestamp: %w", err)
	}
	return t.UnixMilli(), nil
}

// OrderClause names the body field query results sort on.
type OrderClause struct {
	Field string `"order" "by" @Word`
	Desc  bool   `@"desc"?`
}

// PagingTerm is a limit or offset term.
type PagingTerm struct {
	Keyword string `@("limit" | "offset")`
	Value   int    `@Integer`
}

// Expression is a disjunction of conjunctions.
type Expression struct {
	Or []*OrCondition `@@ ("or" @@)*`
}

// OrCondition is a conjunction of conditions.
type OrCondition struct {
	And []*Condition `@@ ("and" @@)*`
}

// Condition is a single predicate term.
type Condition struct {
	Not    *Condition  `"not" @@`
	Sub    *Expression `| "(" @@ ")"`
	Exists *string     `| "exists" "(" @Word ")"`
	Cmp    *Comparison `| @@`
}

// Comparison compares a body field with a literal.
type Comparison struct {
	Field string `@Word`
	Op    string `@BinaryOperator`
	Value Value  `@@`
}

// Value is a literal.
type Value struct {
	Text    *string  `@QuotedString`
	Float   *float64 `| @Float`
	Integer *int64   `| @Integer`
	Bool    *string  `| @("true" | "false")`
}

// Value returns the literal as a Go value.
func (v Value) Value() any {
	switch {
	case v.Text != nil:
		return *v.Text
	case v.Float != nil:
		return *v.Float
	case v.Integer != nil:
		return *v.Integer
	case v.Bool != nil:
		return *v.Bool == "true"
	}
	panic("invalid value")
}

// Parse parses a filter-language string into a predicate plus result-shaping
// options.
func Parse(input string) (*Parsed, error) {
	filter, err := parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse filter: %w", err)
	}
	parsed := &Parsed{Take: -1}
	if filter.Where != nil {
		pred, err := expressionToNode(filter.Where)
		if err != nil {
			return nil, err
		}
		parsed.Predicate = pred
	}
	if filter.Since != nil {
		millis, err := filter.Since.Millis()
		if err != nil {
			return nil, err
		}
		parsed.SinceMillis = millis
		parsed.HasSince = true
	}
	if filter.Order != nil {
		parsed.OrderBy = filter.Order.Field
		parsed.Desc = filter.Order.Desc
	}
	for _, term := range filter.Paging {
		switch term.Keyword {
		case "limit":
			parsed.Take = term.Value
		case "offset":
			parsed.Skip = term.Value
		}
	}
	return parsed, nil
}

// Parsed is the result of parsing a filter string.
type Parsed struct {
	Predicate   Node
	SinceMillis int64
	HasSince    bool
	OrderBy     string
	Desc        bool
	Skip        int
	Take        int
}

func expressionToNode(expr *Expression) (Node, error) {
	children := make([]Node, 0, len(expr.Or))
	for _, or := range expr.Or {
		child, err := orConditionToNode(or)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return OrNode{Children: children}, nil
}

func orConditionToNode(or *OrCondition) (Node, error) {
	children := make([]Node, 0, len(or.And))
	for _, cond := range or.And {
		child, err := conditionToNode(cond)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return AndNode{Children: children}, nil
}

func conditionToNode(cond *Condition) (Node, error) {
	switch {
	case cond.Not != nil:
		child, err := conditionToNode(cond.Not)
		if err != nil {
			return nil, err
		}
		return NotNode{Child: child}, nil
	case cond.Sub != nil:
		return expressionToNode(cond.Sub)
	case cond.Exists != nil:
		return ExistsNode{Field: *cond.Exists}, nil
	case cond.Cmp != nil:
		return CmpNode{
			Field: cond.Cmp.Field,
			Op:    CmpOp(cond.Cmp.Op),
			Value: cond.Cmp.Value.Value(),
		}, nil
	default:
		return nil, fmt.Errorf("empty condition")
	}
}
