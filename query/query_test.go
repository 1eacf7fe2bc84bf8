package query_test

import (
	"testing"

	"github.com/loambase/loam/query"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		assertion string
		input     string
		expected  query.Node
	}{
		{
			"string equality",
			`name = "Alice"`,
			query.Eq("name", "Alice"),
		},
		{
			"integer comparison",
			`age > 25`,
			query.Gt("age", int64(25)),
		},
		{
			"float comparison",
			`score <= 9.5`,
			query.Lte("score", 9.5),
		},
		{
			"boolean",
			`active = true`,
			query.Eq("active", true),
		},
		{
			"dotted path",
			`address.city = "Oslo"`,
			query.Eq("address.city", "Oslo"),
		},
		{
			"conjunction",
			`name = "Alice" and age > 25`,
			query.And(query.Eq("name", "Alice"), query.Gt("age", int64(25))),
		},
		{
			"disjunction binds looser than conjunction",
			`a = 1 or b = 2 and c = 3`,
			query.Or(
				query.Eq("a", int64(1)),
				query.And(query.Eq("b", int64(2)), query.Eq("c", int64(3))),
			),
		},
		{
			"parenthesized subexpression",
			`(a = 1 or b = 2) and c = 3`,
			query.And(
				query.Or(query.Eq("a", int64(1)), query.Eq("b", int64(2))),
				query.Eq("c", int64(3)),
			),
		},
		{
			"negation",
			`not a = 1`,
			query.Not(query.Eq("a", int64(1))),
		},
		{
			"exists",
			`exists(email)`,
			query.Exists("email"),
		},
		{
			"like",
			`name ~ "Al%"`,
			query.Like("name", "Al%"),
		},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			parsed, err := query.Parse(c.input)
			require.NoError(t, err)
			require.Equal(t, c.expected, parsed.Predicate)
		})
	}
}

func TestParseResultShaping(t *testing.T) {
	parsed, err := query.Parse(`age > 21 order by age desc limit 10 offset 5`)
	require.NoError(t, err)
	require.Equal(t, "age", parsed.OrderBy)
	require.True(t, parsed.Desc)
	require.Equal(t, 10, parsed.Take)
	require.Equal(t, 5, parsed.Skip)
}

func TestParseSince(t *testing.T) {
	parsed, err := query.Parse(`since "2026-08-01T00:00:00Z"`)
	require.NoError(t, err)
	require.True(t, parsed.HasSince)
	require.Equal(t, int64(1785542400000), parsed.SinceMillis)
	require.Nil(t, parsed.Predicate)
}

func TestParseEmptyFilter(t *testing.T) {
	parsed, err := query.Parse(`limit 3`)
	require.NoError(t, err)
	require.Nil(t, parsed.Predicate)
	require.Equal(t, 3, parsed.Take)
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{
		`name =`,
		`= "Alice"`,
		`(a = 1`,
		`name ? "x"`,
	} {
		_, err := query.Parse(input)
		require.Error(t, err, "input %q should not parse", input)
	}
}

func TestToSQL(t *testing.T) {
	cases := []struct {
		assertion    string
		node         query.Node
		expectedSQL  string
		expectedArgs []any
	}{
		{
			"nil predicate",
			nil,
			"1 = 1",
			nil,
		},
		{
			"equality",
			query.Eq("name", "Alice"),
			"json_extract(body, ?) = ?",
			[]any{"$.name", "Alice"},
		},
		{
			"dotted path",
			query.Gt("address.floor", int64(2)),
			"json_extract(body, ?) > ?",
			[]any{"$.address.floor", int64(2)},
		},
		{
			"conjunction",
			query.And(query.Eq("a", int64(1)), query.Ne("b", int64(2))),
			"(json_extract(body, ?) = ?) and (json_extract(body, ?) != ?)",
			[]any{"$.a", int64(1), "$.b", int64(2)},
		},
		{
			"negated exists",
			query.Not(query.Exists("email")),
			"not (json_type(body, ?) is not null)",
			[]any{"$.email"},
		},
		{
			"like",
			query.Like("name", "Al%"),
			"json_extract(body, ?) like ?",
			[]any{"$.name", "Al%"},
		},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			sql, args, err := query.ToSQL(c.node)
			require.NoError(t, err)
			require.Equal(t, c.expectedSQL, sql)
			require.Equal(t, c.expectedArgs, args)
		})
	}
}

func TestToSQLRejectsNonStringLikePattern(t *testing.T) {
	_, _, err := query.ToSQL(query.CmpNode{Field: "name", Op: query.OpLike, Value: 42})
	require.Error(t, err)
}

func TestMatches(t *testing.T) {
	body := []byte(`{"name":"Alice","age":26,"active":true,"address":{"city":"Oslo"}}`)
	cases := []struct {
		assertion string
		node      query.Node
		expected  bool
	}{
		{"equality hit", query.Eq("name", "Alice"), true},
		{"equality miss", query.Eq("name", "Bob"), false},
		{"numeric comparison", query.Gt("age", int64(25)), true},
		{"numeric miss", query.Lt("age", int64(20)), false},
		{"boolean", query.Eq("active", true), true},
		{"nested path", query.Eq("address.city", "Oslo"), true},
		{"missing field", query.Eq("missing", int64(1)), false},
		{"exists hit", query.Exists("address.city"), true},
		{"exists miss", query.Exists("email"), false},
		{"not", query.Not(query.Eq("name", "Bob")), true},
		{"and", query.And(query.Eq("name", "Alice"), query.Gte("age", int64(26))), true},
		{"or", query.Or(query.Eq("name", "Bob"), query.Eq("name", "Alice")), true},
		{"like", query.Like("name", "Al%"), true},
		{"like miss", query.Like("name", "Bo%"), false},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			require.Equal(t, c.expected, query.Matches(c.node, body))
		})
	}
}

func TestMatchesMalformedBody(t *testing.T) {
	require.False(t, query.Matches(query.Eq("a", int64(1)), []byte("{not json")))
	require.True(t, query.Matches(nil, []byte("{not json")))
}
