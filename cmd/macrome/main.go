// Command macrome runs in-tree code generators and keeps their output in sync.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/macrome/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "macrome: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
