package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "loam",
	Short: "loam is a local-first peer-to-peer document database",
	Long: `loam is an embeddable document database for trusted local networks.
Every node holds a full replica and converges with its peers through
gossip-style anti-entropy. Run a node with "loam serve"; the other commands
talk to a running node over its HTTP port.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&serverURL, "server", "s", "http://localhost:7421", "Address of the node's HTTP port")
}

func bailf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
