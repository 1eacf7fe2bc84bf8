package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete [collection] [key]",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := newClient().delete(args[0], args[1]); err != nil {
			bailf("failed to delete document: %v", err)
		}
		fmt.Printf("%s/%s deleted\n", args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
