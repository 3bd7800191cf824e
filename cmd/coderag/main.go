// Command coderag answers questions about an indexed code repository. It
// provides a CLI interface (via Cobra), an HTTP API and an MCP stdio server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/coderag-go/cmd/coderag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
