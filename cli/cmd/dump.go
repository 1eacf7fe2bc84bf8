package cmd

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var dumpGlob string

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump documents as newline-delimited JSON",
	Long: `Dump every live document whose collection matches the glob, one
JSON record per line. Collections may be path-like ("app/users"), so the
glob supports doublestar patterns:

	loam dump --collections 'app/**'`,
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		collections, err := c.collections()
		if err != nil {
			bailf("failed to list collections: %v", err)
		}
		for _, collection := range collections {
			matched, err := doublestar.Match(dumpGlob, collection)
			if err != nil {
				bailf("invalid collection glob: %v", err)
			}
			if !matched {
				continue
			}
			docs, err := c.query(collection, "")
			if err != nil {
				bailf("failed to dump %s: %v", collection, err)
			}
			for _, doc := range docs {
				record, err := json.Marshal(map[string]any{
					"collection": doc.Collection,
					"key":        doc.Key,
					"body":       doc.Body,
					"updated_at": doc.UpdatedAt,
				})
				if err != nil {
					bailf("failed to encode record: %v", err)
				}
				fmt.Println(string(record))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().StringVarP(&dumpGlob, "collections", "c", "**", "Collection glob to dump")
}
