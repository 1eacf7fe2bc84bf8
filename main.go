package main

import (
	"github.com/loambase/loam/cli/cmd"
)

func main() {
	cmd.Execute()
}
