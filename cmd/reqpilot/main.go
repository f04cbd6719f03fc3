// Command reqpilot is the entry point for the requirement analysis
// assistant. It provides a CLI interface (via Cobra) and an optional
// HTTP server exposing the analysis pipeline as a REST API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/reqpilot-go/cmd/reqpilot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
