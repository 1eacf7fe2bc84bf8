package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node status",
	Run: func(cmd *cobra.Command, args []string) {
		status, err := newClient().status()
		if err != nil {
			bailf("failed to read status: %v", err)
		}
		header := color.New(color.Bold)
		header.Println("loam node")
		fmt.Printf("  node id:    %s\n", status.NodeID)
		fmt.Printf("  clock:      %s\n", status.Clock)
		fmt.Printf("  oplog head: %s\n", status.OplogHead)
		fmt.Printf("  peers:      %d\n", status.Peers)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
