package util_test

import (
	"bytes"
	"testing"

	"github.com/loambase/loam/cli/util"
	"github.com/stretchr/testify/require"
)

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	util.PrintTable(&buf,
		[]string{"Key", "Body"},
		[][]string{
			{"u1", `{"name":"Alice"}`},
			{"u2", `{"name":"Bob"}`},
		},
	)
	expected := `| Key | Body             |
|-----|------------------|
| u1  | {"name":"Alice"} |
| u2  | {"name":"Bob"}   |
`
	require.Equal(t, expected, buf.String())
}

func TestPrintTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	util.PrintTable(&buf, []string{"A"}, nil)
	require.Contains(t, buf.String(), "| A |")
}
