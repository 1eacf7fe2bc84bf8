package cmd

import (
	"fmt"
	"os"
	"strings"

	cliutil "github.com/loambase/loam/cli/util"
	"github.com/spf13/cobra"
)

var queryJSON bool

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query [collection] [filter...]",
	Short: "Query documents with the filter language",
	Long: `Query documents in a collection. The filter uses the loam filter
language, for example:

	loam query users 'name = "Alice" and age > 25 order by age desc limit 10'

An empty filter returns the whole collection.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		filter := strings.Join(args[1:], " ")
		docs, err := newClient().query(args[0], filter)
		if err != nil {
			bailf("failed to query documents: %v", err)
		}
		if queryJSON {
			for _, doc := range docs {
				fmt.Println(string(doc.Body))
			}
			return
		}
		rows := make([][]string, 0, len(docs))
		for _, doc := range docs {
			rows = append(rows, []string{doc.Key, doc.UpdatedAt.String(), string(doc.Body)})
		}
		cliutil.PrintTable(os.Stdout, []string{"Key", "Updated At", "Body"}, rows)
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVarP(&queryJSON, "json", "j", false, "Print bodies as newline-delimited JSON")
}
