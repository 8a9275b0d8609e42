// Command alphalite is the command line and daemon for the local assistant
// core.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/scrypster/alphalite/internal/cli"
)

func main() {
	if err := cli.Run(context.Background(), os.Args, os.Stdin, os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err.Message)
		os.Exit(err.Code)
	}
}
