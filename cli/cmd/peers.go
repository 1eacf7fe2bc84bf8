package cmd

import (
	"os"
	"time"

	cliutil "github.com/loambase/loam/cli/util"
	"github.com/spf13/cobra"
)

// peersCmd represents the peers command
var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List discovered peers",
	Run: func(cmd *cobra.Command, args []string) {
		descriptors, err := newClient().peers()
		if err != nil {
			bailf("failed to list peers: %v", err)
		}
		rows := make([][]string, 0, len(descriptors))
		for _, d := range descriptors {
			rows = append(rows, []string{d.NodeID, d.Addr, d.LastSeen.Format(time.RFC3339)})
		}
		cliutil.PrintTable(os.Stdout, []string{"Node", "Address", "Last Seen"}, rows)
	},
}

func init() {
	rootCmd.AddCommand(peersCmd)
}
