// Command sheetsync serves, exports and validates collaborative sheets.
package main

import (
	"fmt"
	"os"

	"github.com/gridhouse/sheetsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
