package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put [collection] [key] [json|-]",
	Short: "Write a document",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		body := []byte(args[2])
		if args[2] == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				bailf("failed to read stdin: %v", err)
			}
			body = data
		}
		doc, err := newClient().put(args[0], args[1], body)
		if err != nil {
			bailf("failed to put document: %v", err)
		}
		fmt.Printf("%s/%s written at %s\n", doc.Collection, doc.Key, doc.UpdatedAt)
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}
