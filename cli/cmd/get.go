package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var getShowMeta bool

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get [collection] [key]",
	Short: "Read a document",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := newClient().get(args[0], args[1])
		if err != nil {
			bailf("failed to get document: %v", err)
		}
		if getShowMeta {
			color.New(color.Faint).Printf("# %s/%s updated at %s\n", doc.Collection, doc.Key, doc.UpdatedAt)
		}
		fmt.Println(string(doc.Body))
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVarP(&getShowMeta, "meta", "m", false, "Print the document's timestamp")
}
