// Scout - Incremental code graph engine.
//
// Scout indexes a repository into a structural code graph and keeps it
// current through change detection and incremental updates.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/scoutgraph/scout-go/cmd"
)

func main() {
	_ = godotenv.Load()

	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
