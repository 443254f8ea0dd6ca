// Command ghqc drives the QC workflow engine from a terminal: local
// status display, batch milestone view, the write-path actions
// (comment/review/approve/unapprove), issue creation, milestone archiving,
// and the HTTP API server backing the interactive front-end.
package main

import (
	"fmt"
	"os"

	"github.com/a2-ai/ghqc/cmd/ghqc/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
