package resolve_test

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/resolve"
	"github.com/stretchr/testify/require"
)

func ts(wall int64, logical int32, node string) hlc.Timestamp {
	return hlc.Timestamp{Wall: wall, Logical: logical, Node: node}
}

func TestLWW(t *testing.T) {
	local := []byte(`{"v":1}`)
	remote := []byte(`{"v":2}`)

	merged, err := resolve.LWW{}.Merge(local, remote, ts(100, 0, "a"), ts(200, 0, "b"))
	require.NoError(t, err)
	require.Equal(t, remote, merged)

	merged, err = resolve.LWW{}.Merge(local, remote, ts(200, 0, "a"), ts(100, 0, "b"))
	require.NoError(t, err)
	require.Equal(t, local, merged)
}

func TestLWWNodeTiebreak(t *testing.T) {
	local := []byte(`{"v":1}`)
	remote := []byte(`{"v":2}`)
	merged, err := resolve.LWW{}.Merge(local, remote, ts(100, 0, "A"), ts(100, 0, "B"))
	require.NoError(t, err)
	require.Equal(t, remote, merged)
}

func TestForName(t *testing.T) {
	require.Equal(t, "lww", resolve.ForName("lww").Name())
	require.Equal(t, "field-merge", resolve.ForName("field-merge").Name())
	require.Equal(t, "lww", resolve.ForName("bogus").Name())
}

func TestFieldMergeScalars(t *testing.T) {
	// A sets age=26 at (100,0,"A"); B sets name="Alicia" at (105,0,"B").
	local := []byte(`{"name":"Alice","age":26}`)
	remote := []byte(`{"name":"Alicia","age":25}`)
	merged, err := resolve.FieldMerge{}.Merge(local, remote, ts(100, 0, "A"), ts(105, 0, "B"))
	require.NoError(t, err)
	requireJSONEqual(t, `{"name":"Alicia","age":25}`, merged)

	// Fields only one side carries are kept.
	local = []byte(`{"age":26}`)
	remote = []byte(`{"name":"Alicia"}`)
	merged, err = resolve.FieldMerge{}.Merge(local, remote, ts(100, 0, "A"), ts(105, 0, "B"))
	require.NoError(t, err)
	requireJSONEqual(t, `{"name":"Alicia","age":26}`, merged)
}

func TestFieldMergeNestedObjects(t *testing.T) {
	local := []byte(`{"address":{"city":"Oslo","zip":"0150"},"age":26}`)
	remote := []byte(`{"address":{"city":"Bergen"},"name":"Alice"}`)
	merged, err := resolve.FieldMerge{}.Merge(local, remote, ts(100, 0, "A"), ts(105, 0, "B"))
	require.NoError(t, err)
	requireJSONEqual(t, `{"address":{"city":"Bergen","zip":"0150"},"age":26,"name":"Alice"}`, merged)
}

func TestFieldMergeShapeMismatch(t *testing.T) {
	local := []byte(`{"tags":{"a":1}}`)
	remote := []byte(`{"tags":[1,2]}`)
	merged, err := resolve.FieldMerge{}.Merge(local, remote, ts(100, 0, "A"), ts(105, 0, "B"))
	require.NoError(t, err)
	requireJSONEqual(t, `{"tags":[1,2]}`, merged)
}

func TestFieldMergeArraysByIdentity(t *testing.T) {
	local := []byte(`{"items":[{"id":"1"},{"id":"2"},{"id":"3","qty":1}]}`)
	remote := []byte(`{"items":[{"id":"1"},{"id":"2"},{"id":"4"},{"id":"3","qty":5}]}`)
	merged, err := resolve.FieldMerge{}.Merge(local, remote, ts(100, 0, "A"), ts(100, 0, "B"))
	require.NoError(t, err)
	requireJSONEqual(t,
		`{"items":[{"id":"1"},{"id":"2"},{"id":"3","qty":5},{"id":"4"}]}`, merged)
}

func TestFieldMergeArrayConcatDedupe(t *testing.T) {
	local := []byte(`{"tags":["red","green"]}`)
	remote := []byte(`{"tags":["green","blue"]}`)
	merged, err := resolve.FieldMerge{}.Merge(local, remote, ts(100, 0, "A"), ts(105, 0, "B"))
	require.NoError(t, err)
	requireJSONEqual(t, `{"tags":["red","green","blue"]}`, merged)
}

// Swapping the (local, remote) roles with their timestamps must not change
// the result: both replicas of a conflicting pair compute the same body.
func TestFieldMergeSymmetric(t *testing.T) {
	a := []byte(`{"name":"Alice","age":26,"items":[{"id":"3"},{"id":"1"}],"tags":["x","y"]}`)
	b := []byte(`{"name":"Alicia","items":[{"id":"2"},{"id":"1","v":2}],"tags":["y","z"]}`)
	tsA, tsB := ts(100, 0, "A"), ts(105, 0, "B")

	first, err := resolve.FieldMerge{}.Merge(a, b, tsA, tsB)
	require.NoError(t, err)
	second, err := resolve.FieldMerge{}.Merge(b, a, tsB, tsA)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestFieldMergeMalformedJSON(t *testing.T) {
	_, err := resolve.FieldMerge{}.Merge([]byte(`{broken`), []byte(`{}`), ts(100, 0, "A"), ts(105, 0, "B"))
	require.Error(t, err)
	_, err = resolve.FieldMerge{}.Merge([]byte(`{}`), []byte(`{broken`), ts(100, 0, "A"), ts(105, 0, "B"))
	require.Error(t, err)
}

func requireJSONEqual(t *testing.T, expected string, actual []byte) {
	t.Helper()
	var expectedVal, actualVal any
	require.NoError(t, json.Unmarshal([]byte(expected), &expectedVal))
	require.NoError(t, json.Unmarshal(actual, &actualVal))
	require.Equal(t, expectedVal, actualVal)
}
