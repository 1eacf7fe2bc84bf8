package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	cliutil "github.com/loambase/loam/cli/util"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

/*
Interactive shell against a running node. Commands:

	use <collection>          set the working collection
	put <key> <json>          write a document
	get <key>                 read a document
	del <key>                 delete a document
	query [filter]            query the working collection
	peers                     list discovered peers
	status                    show node status
	exit                      leave the shell
*/

////////////////////////////////////////////////////////////////////////////////

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell against a running node",
	Run: func(cmd *cobra.Command, args []string) {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "loam> ",
			HistoryFile:     historyPath(),
			InterruptPrompt: "^C",
		})
		if err != nil {
			bailf("failed to initialize shell: %v", err)
		}
		defer rl.Close()

		c := newClient()
		collection := "default"
		for {
			line, err := rl.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					return
				}
				bailf("shell failed: %v", err)
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			fields := strings.Fields(line)
			verb := fields[0]
			rest := strings.TrimSpace(strings.TrimPrefix(line, verb))
			switch verb {
			case "exit", "quit":
				return
			case "use":
				if rest == "" {
					shellErrf("usage: use <collection>")
					continue
				}
				collection = rest
				rl.SetPrompt(fmt.Sprintf("loam/%s> ", collection))
			case "put":
				if len(fields) < 3 {
					shellErrf("usage: put <key> <json>")
					continue
				}
				body := strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
				doc, err := c.put(collection, fields[1], []byte(body))
				if err != nil {
					shellErrf("put failed: %v", err)
					continue
				}
				fmt.Printf("written at %s\n", doc.UpdatedAt)
			case "get":
				if len(fields) != 2 {
					shellErrf("usage: get <key>")
					continue
				}
				doc, err := c.get(collection, fields[1])
				if err != nil {
					shellErrf("get failed: %v", err)
					continue
				}
				fmt.Println(string(doc.Body))
			case "del":
				if len(fields) != 2 {
					shellErrf("usage: del <key>")
					continue
				}
				if err := c.delete(collection, fields[1]); err != nil {
					shellErrf("delete failed: %v", err)
					continue
				}
				fmt.Println("deleted")
			case "query":
				docs, err := c.query(collection, rest)
				if err != nil {
					shellErrf("query failed: %v", err)
					continue
				}
				rows := make([][]string, 0, len(docs))
				for _, doc := range docs {
					rows = append(rows, []string{doc.Key, string(doc.Body)})
				}
				cliutil.PrintTable(os.Stdout, []string{"Key", "Body"}, rows)
			case "peers":
				descriptors, err := c.peers()
				if err != nil {
					shellErrf("peers failed: %v", err)
					continue
				}
				rows := make([][]string, 0, len(descriptors))
				for _, d := range descriptors {
					rows = append(rows, []string{d.NodeID, d.Addr, d.LastSeen.Format(time.RFC3339)})
				}
				cliutil.PrintTable(os.Stdout, []string{"Node", "Address", "Last Seen"}, rows)
			case "status":
				status, err := c.status()
				if err != nil {
					shellErrf("status failed: %v", err)
					continue
				}
				fmt.Printf("node %s clock %s peers %d\n", status.NodeID, status.Clock, status.Peers)
			default:
				shellErrf("unknown command %q", verb)
			}
		}
	},
}

func shellErrf(format string, args ...any) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.loam_history"
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
